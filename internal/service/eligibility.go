package service

import (
	"sort"

	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/pkg/geo"
)

// IDSet is a set of identifiers, typically declined request or worker ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports membership. A nil set is empty.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the members in no particular order.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

func categoryMatches(request, worker *string) bool {
	if request == nil {
		return true
	}
	return worker != nil && *worker == *request
}

// withinRadius evaluates the shared distance predicate. The radius bound is inclusive.
func withinRadius(worker *models.WorkerProfile, request *models.ServiceRequest) (float64, bool) {
	location, ok := worker.Location()
	if !ok {
		return 0, false
	}
	distance := geo.Between(location, request.Point())
	return distance, distance <= float64(worker.ServiceRadiusKm)
}

// EligibleWorkers returns the workers that should be offered request, nearest first.
// Every worker in pool is evaluated; callers narrow the pool in storage beforehand.
func EligibleWorkers(request models.ServiceRequest, pool []models.WorkerProfile, declined IDSet) []models.WorkerMatch {
	matches := make([]models.WorkerMatch, 0, len(pool))
	for i := range pool {
		worker := &pool[i]
		if !worker.Available || !worker.Active {
			continue
		}
		if !categoryMatches(request.CategoryID, worker.CategoryID) {
			continue
		}
		if declined.Has(worker.UserID) {
			continue
		}
		distance, ok := withinRadius(worker, &request)
		if !ok {
			continue
		}
		matches = append(matches, models.WorkerMatch{Worker: *worker, DistanceKm: distance})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].Worker.UserID < matches[j].Worker.UserID
	})
	return matches
}

// VisibleJobs returns the pending requests worker may take, oldest first.
// Availability is not required here: an offline worker can still browse.
func VisibleJobs(worker models.WorkerProfile, requests []models.ServiceRequest, declined IDSet) []models.JobMatch {
	if _, ok := worker.Location(); !ok {
		return []models.JobMatch{}
	}
	matches := make([]models.JobMatch, 0, len(requests))
	for i := range requests {
		request := &requests[i]
		if request.Status != models.StatusPending || declined.Has(request.ID) {
			continue
		}
		if !categoryMatches(request.CategoryID, worker.CategoryID) {
			continue
		}
		distance, ok := withinRadius(&worker, request)
		if !ok {
			continue
		}
		matches = append(matches, models.JobMatch{Request: *request, DistanceKm: distance})
	}
	sortOldestFirst(matches)
	return matches
}

// NearbyQuery describes a nearby-jobs search from an explicit origin.
type NearbyQuery struct {
	Origin        geo.Point
	MaxDistanceKm float64
	// CategoryID, when set, keeps only requests in that exact category.
	CategoryID *string
}

// NearbyJobs returns pending, undeclined requests within query.MaxDistanceKm of query.Origin, oldest first.
func NearbyJobs(query NearbyQuery, requests []models.ServiceRequest, declined IDSet) []models.JobMatch {
	matches := make([]models.JobMatch, 0, len(requests))
	for i := range requests {
		request := &requests[i]
		if request.Status != models.StatusPending || declined.Has(request.ID) {
			continue
		}
		if query.CategoryID != nil && (request.CategoryID == nil || *request.CategoryID != *query.CategoryID) {
			continue
		}
		distance := geo.Between(query.Origin, request.Point())
		if distance > query.MaxDistanceKm {
			continue
		}
		matches = append(matches, models.JobMatch{Request: *request, DistanceKm: distance})
	}
	sortOldestFirst(matches)
	return matches
}

func sortOldestFirst(matches []models.JobMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Request, matches[j].Request
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
