package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/internal/repository"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
)

const (
	adminNotesTimeLayout = "2006-01-02 15:04:05"
	defaultDeclineReason = "Not interested"
)

var errRequestTaken = appErrors.Clone(appErrors.ErrConflict, "request is no longer available")

func actorLabel(actor models.Actor) string {
	if actor.Email != "" {
		return actor.Email
	}
	return actor.UserID
}

func invalidTransition(t models.Transition, from models.RequestStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot %s a request that is %s", t, from))
}

// appendAdminNote adds line to the existing notes and keeps the newest text within the column limit.
func appendAdminNote(existing, line string) string {
	notes := line
	if existing != "" {
		notes = existing + "\n" + line
	}
	runes := []rune(notes)
	if len(runes) > models.MaxAdminNotesLength {
		notes = string(runes[:models.MaxAdminNotesLength])
	}
	return notes
}

// runTransition applies fn under the request lock and maps storage outcomes onto typed errors.
func (s *DispatchService) runTransition(ctx context.Context, t models.Transition, id string, fn repository.TransitionFunc) (*models.ServiceRequest, error) {
	updated, err := s.requests.Transition(ctx, id, fn)
	if err == nil {
		s.metrics.ObserveTransition(t, OutcomeApplied)
		return updated, nil
	}

	outcome := OutcomeError
	var mapped error
	var appErr *appErrors.Error
	switch {
	case errors.Is(err, repository.ErrStaleState):
		if t == models.TransitionAccept {
			outcome, mapped = OutcomeConflict, errRequestTaken
		} else {
			outcome, mapped = OutcomeInvalid, appErrors.Clone(appErrors.ErrInvalidTransition, "request status changed, reload and retry")
		}
	case errors.Is(err, repository.ErrLockTimeout):
		outcome, mapped = OutcomeBusy, appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, appErrors.ErrBusy.Message)
	case errors.Is(err, sql.ErrNoRows):
		outcome, mapped = OutcomeInvalid, appErrors.Clone(appErrors.ErrNotFound, "service request not found")
	case errors.As(err, &appErr):
		switch appErr.Code {
		case appErrors.ErrConflict.Code:
			outcome = OutcomeConflict
		case appErrors.ErrInternal.Code:
			outcome = OutcomeError
		default:
			outcome = OutcomeInvalid
		}
		mapped = appErr
	default:
		mapped = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s service request", t))
	}
	s.metrics.ObserveTransition(t, outcome)
	if outcome == OutcomeError || outcome == OutcomeBusy {
		s.logger.Warn("transition failed", zap.String("transition", string(t)), zap.String("request_id", id), zap.Error(err))
	}
	return nil, mapped
}

func (s *DispatchService) dispatchAfterCommit(plan *repository.TransitionPlan) {
	if plan != nil {
		s.notifications.Dispatch(plan.Notifications)
	}
}

// Accept assigns the request to the calling worker. Of several concurrent callers exactly one wins;
// the rest see a conflict.
func (s *DispatchService) Accept(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only workers can accept requests")
	}
	profile, err := s.workers.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "a worker profile is required to accept requests")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load worker profile")
	}
	displayName := actor.Email
	if profile.FullName != "" {
		displayName = profile.FullName
	}

	var plan *repository.TransitionPlan
	updated, err := s.runTransition(ctx, models.TransitionAccept, id, func(current *models.ServiceRequest) (*repository.TransitionPlan, error) {
		if !models.TransitionAccept.AllowedFrom(current.Status) {
			return nil, errRequestTaken
		}
		now := s.now()
		next := *current
		workerID := actor.UserID
		next.WorkerID = &workerID
		next.Status = models.TransitionAccept.Target()
		next.AcceptedAt = &now
		next.UpdatedAt = now
		plan = &repository.TransitionPlan{
			Next:          &next,
			Activity:      s.activity(current.ID, actor, fmt.Sprintf("Accepted by %s.", actorLabel(actor)), req.Notes),
			Notifications: []models.NotificationIntent{RequestAcceptedIntent(next, actor, displayName)},
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("service request accepted", zap.String("request_id", updated.ID), zap.String("worker_id", actor.UserID))
	s.dispatchAfterCommit(plan)
	return updated, nil
}

func (s *DispatchService) startPlan(actor models.Actor, message, notes string, out **repository.TransitionPlan, followUps ...*models.RequestActivity) repository.TransitionFunc {
	return func(current *models.ServiceRequest) (*repository.TransitionPlan, error) {
		if !models.TransitionStart.AllowedFrom(current.Status) {
			return nil, invalidTransition(models.TransitionStart, current.Status)
		}
		if !current.AssignedTo(actor.UserID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker can start this request")
		}
		now := s.now()
		next := *current
		next.Status = models.TransitionStart.Target()
		next.UpdatedAt = now
		*out = &repository.TransitionPlan{
			Next:      &next,
			Activity:  s.activity(current.ID, actor, message, notes),
			FollowUps: followUps,
		}
		return *out, nil
	}
}

// Start marks an accepted request as in progress.
func (s *DispatchService) Start(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker can start this request")
	}
	var plan *repository.TransitionPlan
	updated, err := s.runTransition(ctx, models.TransitionStart, id,
		s.startPlan(actor, fmt.Sprintf("Marked in progress by %s.", actorLabel(actor)), req.Notes, &plan))
	if err != nil {
		return nil, err
	}
	s.dispatchAfterCommit(plan)
	return updated, nil
}

// Complete closes the job and bumps the worker's completed counter in the same transaction.
func (s *DispatchService) Complete(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleWorker && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker can complete this request")
	}
	workerEmail := ""
	if actor.Role == models.RoleWorker {
		workerEmail = actor.Email
	} else if current, err := s.requests.GetByID(ctx, id); err == nil && current.WorkerID != nil {
		if profile, err := s.workers.GetByUserID(ctx, *current.WorkerID); err == nil {
			workerEmail = profile.Email
		}
	}

	var plan *repository.TransitionPlan
	updated, err := s.runTransition(ctx, models.TransitionComplete, id, func(current *models.ServiceRequest) (*repository.TransitionPlan, error) {
		if !models.TransitionComplete.AllowedFrom(current.Status) {
			return nil, invalidTransition(models.TransitionComplete, current.Status)
		}
		if !actor.IsAdmin() && !current.AssignedTo(actor.UserID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker can complete this request")
		}
		now := s.now()
		next := *current
		next.Status = models.TransitionComplete.Target()
		next.CompletedAt = &now
		next.UpdatedAt = now
		plan = &repository.TransitionPlan{
			Next:          &next,
			Activity:      s.activity(current.ID, actor, fmt.Sprintf("Completed by %s.", actorLabel(actor)), req.Notes),
			Notifications: []models.NotificationIntent{RequestCompletedIntent(next, workerEmail)},
		}
		if current.WorkerID != nil {
			plan.IncrementCompletedFor = *current.WorkerID
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("service request completed", zap.String("request_id", updated.ID))
	s.dispatchAfterCommit(plan)
	return updated, nil
}

// Cancel moves a non-terminal request to CANCELLED and records who did it in admin_notes.
func (s *DispatchService) Cancel(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error) {
	var plan *repository.TransitionPlan
	updated, err := s.runTransition(ctx, models.TransitionCancel, id, func(current *models.ServiceRequest) (*repository.TransitionPlan, error) {
		allowed := actor.IsAdmin() ||
			(actor.Role == models.RoleCustomer && current.CustomerID == actor.UserID) ||
			(actor.Role == models.RoleWorker && current.AssignedTo(actor.UserID))
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you cannot cancel this request")
		}
		if !models.TransitionCancel.AllowedFrom(current.Status) {
			return nil, invalidTransition(models.TransitionCancel, current.Status)
		}
		now := s.now()
		next := *current
		next.Status = models.TransitionCancel.Target()
		next.CancelledAt = &now
		next.UpdatedAt = now
		next.AdminNotes = appendAdminNote(current.AdminNotes,
			fmt.Sprintf("Cancelled by %s at %s", actorLabel(actor), now.Format(adminNotesTimeLayout)))
		plan = &repository.TransitionPlan{
			Next:          &next,
			Activity:      s.activity(current.ID, actor, fmt.Sprintf("Cancelled by %s.", actorLabel(actor)), req.Notes),
			Notifications: RequestCancelledIntents(next, actor),
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("service request cancelled", zap.String("request_id", updated.ID), zap.String("actor_id", actor.UserID))
	s.dispatchAfterCommit(plan)
	return updated, nil
}

// Decline records that the worker does not want a pending request. Repeating it updates the reason.
func (s *DispatchService) Decline(ctx context.Context, actor models.Actor, id string, req dto.DeclineRequest) (*models.WorkerJobDecline, error) {
	if actor.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only workers can decline requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decline payload")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only pending requests can be declined")
	}

	reason := strings.TrimSpace(req.Reason)
	shown := reason
	if shown == "" {
		shown = defaultDeclineReason
	}
	decline := &models.WorkerJobDecline{
		WorkerID:         actor.UserID,
		ServiceRequestID: current.ID,
		Reason:           reason,
	}
	activity := s.activity(current.ID, actor, fmt.Sprintf("Declined by %s. Reason: %s", actorLabel(actor), shown), "")
	if err := s.declines.Upsert(ctx, decline, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decline request")
	}
	s.logger.Info("service request declined", zap.String("request_id", current.ID), zap.String("worker_id", actor.UserID))
	return decline, nil
}

// RenotifyWorkers re-runs the creation fan-out for a pending request. Workers that already hold the
// notification keep their row untouched; workers that declined are skipped.
func (s *DispatchService) RenotifyWorkers(ctx context.Context, actor models.Actor, id string) (int, error) {
	if !actor.IsAdmin() {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "only admins can re-notify workers")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if current.Status != models.StatusPending {
		return 0, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be re-notified")
	}
	declinedIDs, err := s.declines.WorkerIDsForRequest(ctx, current.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load declines")
	}
	pool, err := s.workers.ListCandidates(ctx, models.WorkerCandidateFilter{
		AvailableOnly: true,
		LocatedOnly:   true,
		CategoryID:    current.CategoryID,
	})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workers")
	}
	intents := RequestCreatedIntents(*current, EligibleWorkers(*current, pool, NewIDSet(declinedIDs...)))
	if err := s.notifications.Write(ctx, intents); err != nil {
		return 0, err
	}
	s.logger.Info("workers re-notified", zap.String("request_id", current.ID), zap.Int("workers", len(intents)))
	return len(intents), nil
}
