package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/geo"
)

// DefaultSearchDistanceKm bounds a located worker search without max_distance_km.
const DefaultSearchDistanceKm = 50.0

// WorkerService manages worker availability and the customer-facing worker search.
type WorkerService struct {
	workers    WorkerStore
	categories categoryChecker
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewWorkerService constructs a WorkerService.
func NewWorkerService(workers WorkerStore, categories categoryChecker, validate *validator.Validate, logger *zap.Logger) *WorkerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerService{
		workers:    workers,
		categories: categories,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UpdateAvailability toggles the worker's availability. Going available needs a position.
func (s *WorkerService) UpdateAvailability(ctx context.Context, actor models.Actor, req dto.AvailabilityRequest) (*models.WorkerProfile, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only workers can update availability")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "latitude and longitude must be provided together")
	}
	if *req.IsAvailable && req.Latitude == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "current location is required to become available")
	}

	update := models.WorkerAvailabilityUpdate{
		UserID:          actor.UserID,
		Available:       *req.IsAvailable,
		ServiceRadiusKm: req.ServiceRadiusKm,
		Skills:          req.Skills,
		At:              s.now(),
	}
	if req.Latitude != nil {
		lat, lon := Coordinate(*req.Latitude), Coordinate(*req.Longitude)
		update.Latitude, update.Longitude = &lat, &lon
	}
	switch {
	case req.ClearCategory:
		update.SetCategory = true
	case req.CategoryID != nil && strings.TrimSpace(*req.CategoryID) != "":
		id := strings.TrimSpace(*req.CategoryID)
		if _, err := s.categories.RequireActive(ctx, id); err != nil {
			return nil, err
		}
		update.CategoryID = &id
		update.SetCategory = true
	}

	profile, err := s.workers.UpdateAvailability(ctx, update)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "worker profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update availability")
	}
	s.logger.Info("worker availability updated", zap.String("worker_id", actor.UserID), zap.Bool("available", profile.Available))
	return profile, nil
}

// Search lists active workers for customers. With an origin, only located workers within the
// distance bound are returned, nearest first; otherwise ordering is by rating then completed jobs.
func (s *WorkerService) Search(ctx context.Context, query dto.WorkerSearchQuery) ([]dto.WorkerSearchResult, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid worker search")
	}
	if (query.Latitude == nil) != (query.Longitude == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lat and lng must be provided together")
	}
	filter := models.WorkerCandidateFilter{}
	if query.CategoryID != nil && strings.TrimSpace(*query.CategoryID) != "" {
		id := strings.TrimSpace(*query.CategoryID)
		filter.CategoryID = &id
	}
	if query.MinRating != nil {
		rating := decimal.NewFromFloat(*query.MinRating)
		filter.MinRating = &rating
	}
	located := query.Latitude != nil
	filter.LocatedOnly = located

	workers, err := s.workers.ListCandidates(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search workers")
	}
	if !located {
		results := make([]dto.WorkerSearchResult, 0, len(workers))
		for _, worker := range workers {
			results = append(results, dto.WorkerSearchResult{WorkerProfile: worker})
		}
		return results, nil
	}

	maxDistance := DefaultSearchDistanceKm
	if query.MaxDistanceKm != nil {
		maxDistance = *query.MaxDistanceKm
	}
	origin := geo.Point{Lat: *query.Latitude, Lon: *query.Longitude}
	results := make([]dto.WorkerSearchResult, 0, len(workers))
	for _, worker := range workers {
		location, ok := worker.Location()
		if !ok {
			continue
		}
		distance := geo.Between(origin, location)
		if distance > maxDistance {
			continue
		}
		rounded := geo.Round2(distance)
		results = append(results, dto.WorkerSearchResult{WorkerProfile: worker, DistanceKm: &rounded})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].DistanceKm < *results[j].DistanceKm
	})
	return results, nil
}
