package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/internal/repository"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/geo"
)

// UpdateLocation records the assigned worker's position for an active job. Reporting arrival on an
// accepted job starts it.
func (s *DispatchService) UpdateLocation(ctx context.Context, actor models.Actor, id string, req dto.LocationUpdateRequest) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker can report a location")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location payload")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.AssignedTo(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker can report a location")
	}
	if current.Status != models.StatusAccepted && current.Status != models.StatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot report a location for a request that is %s", current.Status))
	}

	now := s.now()
	if err := s.workers.UpdateLocation(ctx, actor.UserID, Coordinate(*req.Latitude), Coordinate(*req.Longitude), now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "worker profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update worker location")
	}

	arrived := req.Status == dto.LocationArrived
	label := actorLabel(actor)
	message := fmt.Sprintf("Worker %s is on the way. Location updated.", label)
	if arrived {
		message = fmt.Sprintf("Worker %s arrived at location. Location updated.", label)
	}
	located := s.activity(current.ID, actor, message, "")

	if arrived && current.Status == models.StatusAccepted {
		var plan *repository.TransitionPlan
		started, err := s.runTransition(ctx, models.TransitionStart, id,
			s.startPlan(actor, fmt.Sprintf("Worker %s has arrived at the location.", label), "", &plan, located))
		if err != nil {
			return nil, err
		}
		s.dispatchAfterCommit(plan)
		return started, nil
	}

	if err := s.requests.AppendActivity(ctx, located); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record location update")
	}
	return current, nil
}

// TrackWorker shows where the assigned worker is relative to the job.
func (s *DispatchService) TrackWorker(ctx context.Context, actor models.Actor, id string) (*dto.TrackingResponse, error) {
	req, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.WorkerID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "No worker assigned to this request yet.")
	}
	if actor.Role == models.RoleWorker && !req.AssignedTo(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker can track this request")
	}
	profile, err := s.workers.GetByUserID(ctx, *req.WorkerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "worker profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load worker profile")
	}

	target := req.Point()
	resp := &dto.TrackingResponse{
		Worker: dto.TrackedWorker{ID: profile.UserID, Email: profile.Email, FullName: profile.FullName},
		Status: req.Status,
		RequestLocation: &dto.RequestLocation{
			Latitude:  target.Lat,
			Longitude: target.Lon,
			Address:   req.Address,
		},
	}
	if location, ok := profile.Location(); ok {
		resp.Location = &dto.TrackedLocation{
			Latitude:    location.Lat,
			Longitude:   location.Lon,
			LastUpdated: profile.LocationUpdatedAt,
		}
		distance := geo.Round2(geo.Between(location, target))
		resp.DistanceKm = &distance
	}
	return resp, nil
}
