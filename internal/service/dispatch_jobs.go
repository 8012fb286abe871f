package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/geo"
)

// Customer request views.
const (
	CustomerScopeActive    = "active"
	CustomerScopePending   = "pending"
	CustomerScopeCompleted = "completed"
)

func (s *DispatchService) workerProfile(ctx context.Context, actor models.Actor) (*models.WorkerProfile, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only workers can browse jobs")
	}
	profile, err := s.workers.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "worker profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load worker profile")
	}
	return profile, nil
}

func (s *DispatchService) declinedBy(ctx context.Context, workerID string) ([]string, error) {
	ids, err := s.declines.RequestIDsForWorker(ctx, workerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load declined jobs")
	}
	return ids, nil
}

func jobViews(matches []models.JobMatch) []dto.JobView {
	views := make([]dto.JobView, 0, len(matches))
	for _, match := range matches {
		distance := geo.Round2(match.DistanceKm)
		views = append(views, dto.JobView{ServiceRequest: match.Request, DistanceKm: &distance})
	}
	return views
}

// ListEligibleJobs returns the pending requests the worker could accept right now, oldest first.
func (s *DispatchService) ListEligibleJobs(ctx context.Context, actor models.Actor) ([]dto.JobView, error) {
	profile, err := s.workerProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, ok := profile.Location(); !ok {
		return []dto.JobView{}, nil
	}
	declined, err := s.declinedBy(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}
	requests, err := s.requests.List(ctx, models.ServiceRequestFilter{
		Statuses:    []models.RequestStatus{models.StatusPending},
		WorkerScope: &models.CategoryScope{CategoryID: profile.CategoryID},
		ExcludeIDs:  declined,
		Order:       models.OrderOldest,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending jobs")
	}
	return jobViews(VisibleJobs(*profile, requests, NewIDSet(declined...))), nil
}

// NearbyJobs searches pending jobs around an explicit origin. The radius defaults to the worker's
// service radius and the category to the worker's own when one is set.
func (s *DispatchService) NearbyJobs(ctx context.Context, actor models.Actor, query dto.NearbyJobsQuery) ([]dto.JobView, error) {
	profile, err := s.workerProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid nearby query")
	}
	maxDistance := float64(profile.ServiceRadiusKm)
	if query.MaxDistanceKm != nil {
		maxDistance = *query.MaxDistanceKm
	}
	category := profile.CategoryID
	if query.CategoryID != nil && *query.CategoryID != "" {
		category = query.CategoryID
	}
	declined, err := s.declinedBy(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}
	requests, err := s.requests.List(ctx, models.ServiceRequestFilter{
		Statuses:   []models.RequestStatus{models.StatusPending},
		CategoryID: category,
		ExcludeIDs: declined,
		Order:      models.OrderOldest,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list nearby jobs")
	}
	matches := NearbyJobs(NearbyQuery{
		Origin:        geo.Point{Lat: *query.Latitude, Lon: *query.Longitude},
		MaxDistanceKm: maxDistance,
		CategoryID:    category,
	}, requests, NewIDSet(declined...))
	return jobViews(matches), nil
}

func (s *DispatchService) listForWorker(ctx context.Context, actor models.Actor, order models.RequestOrder, statuses ...models.RequestStatus) ([]models.ServiceRequest, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only workers can browse jobs")
	}
	items, err := s.requests.List(ctx, models.ServiceRequestFilter{WorkerID: actor.UserID, Statuses: statuses, Order: order})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list jobs")
	}
	return items, nil
}

// ActiveJobs returns the worker's accepted and in-progress jobs.
func (s *DispatchService) ActiveJobs(ctx context.Context, actor models.Actor) ([]models.ServiceRequest, error) {
	return s.listForWorker(ctx, actor, models.OrderNewest, models.StatusAccepted, models.StatusInProgress)
}

// CompletedJobs returns the worker's finished jobs, most recently completed first.
func (s *DispatchService) CompletedJobs(ctx context.Context, actor models.Actor) ([]models.ServiceRequest, error) {
	return s.listForWorker(ctx, actor, models.OrderRecentlyCompleted, models.StatusCompleted)
}

// DeclinedJobs returns what the worker declined, newest decline first.
func (s *DispatchService) DeclinedJobs(ctx context.Context, actor models.Actor) ([]dto.DeclinedJobView, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only workers can browse jobs")
	}
	items, err := s.declines.ListDeclinedJobs(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list declined jobs")
	}
	views := make([]dto.DeclinedJobView, 0, len(items))
	for _, item := range items {
		views = append(views, dto.DeclinedJobView{
			ServiceRequest: item.ServiceRequest,
			DeclineReason:  item.DeclineReason,
			DeclinedAt:     item.DeclinedAt,
		})
	}
	return views, nil
}

// CustomerRequests lists the customer's own requests for one of the customer scopes.
func (s *DispatchService) CustomerRequests(ctx context.Context, actor models.Actor, scope string) ([]models.ServiceRequest, error) {
	if actor.Role != models.RoleCustomer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only customers can list their requests")
	}
	filter := models.ServiceRequestFilter{CustomerID: actor.UserID, Order: models.OrderNewest}
	switch scope {
	case CustomerScopeActive:
		filter.Statuses = []models.RequestStatus{models.StatusPending, models.StatusAccepted, models.StatusInProgress}
	case CustomerScopePending:
		filter.Statuses = []models.RequestStatus{models.StatusPending}
	case CustomerScopeCompleted:
		filter.Statuses = []models.RequestStatus{models.StatusCompleted}
		filter.Order = models.OrderRecentlyCompleted
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown request scope")
	}
	items, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return items, nil
}
