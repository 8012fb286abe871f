package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/internal/repository"
	"github.com/noah-isme/dispatch-api/pkg/database"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
)

// RequestStore persists service requests and runs locked lifecycle transitions.
type RequestStore interface {
	Create(ctx context.Context, req *models.ServiceRequest, activity *models.RequestActivity, intents []models.NotificationIntent) error
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	List(ctx context.Context, filter models.ServiceRequestFilter) ([]models.ServiceRequest, error)
	Count(ctx context.Context, filter models.ServiceRequestFilter) (int, error)
	Transition(ctx context.Context, id string, fn repository.TransitionFunc) (*models.ServiceRequest, error)
	AppendActivity(ctx context.Context, activity *models.RequestActivity) error
	ListActivities(ctx context.Context, requestID string) ([]models.RequestActivity, error)
}

// WorkerStore reads and updates worker profiles.
type WorkerStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.WorkerProfile, error)
	ListCandidates(ctx context.Context, filter models.WorkerCandidateFilter) ([]models.WorkerProfile, error)
	UpdateAvailability(ctx context.Context, update models.WorkerAvailabilityUpdate) (*models.WorkerProfile, error)
	UpdateLocation(ctx context.Context, userID string, lat, lon decimal.Decimal, at time.Time) error
}

// DeclineStore records per-worker declines.
type DeclineStore interface {
	Upsert(ctx context.Context, decline *models.WorkerJobDecline, activity *models.RequestActivity) error
	WorkerIDsForRequest(ctx context.Context, requestID string) ([]string, error)
	RequestIDsForWorker(ctx context.Context, workerID string) ([]string, error)
	ListDeclinedJobs(ctx context.Context, workerID string) ([]models.DeclinedJob, error)
}

type notificationDispatcher interface {
	Dispatch(intents []models.NotificationIntent)
	Write(ctx context.Context, intents []models.NotificationIntent) error
}

type categoryChecker interface {
	RequireActive(ctx context.Context, id string) (*models.ServiceCategory, error)
}

type addressLookup interface {
	Lookup(ctx context.Context, lat, lon float64) (address, postcode string)
}

// DispatchDeps groups the collaborators of DispatchService.
type DispatchDeps struct {
	Requests      RequestStore
	Workers       WorkerStore
	Declines      DeclineStore
	Notifications notificationDispatcher
	Categories    categoryChecker
	Geocoder      addressLookup
	Validator     *validator.Validate
	Metrics       *MetricsService
	Logger        *zap.Logger
}

// DispatchService runs request creation, matching and the request lifecycle.
type DispatchService struct {
	requests      RequestStore
	workers       WorkerStore
	declines      DeclineStore
	notifications notificationDispatcher
	categories    categoryChecker
	geocoder      addressLookup
	validator     *validator.Validate
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// NewDispatchService builds a DispatchService with sane defaults.
func NewDispatchService(deps DispatchDeps) *DispatchService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &DispatchService{
		requests:      deps.Requests,
		workers:       deps.Workers,
		declines:      deps.Declines,
		notifications: deps.Notifications,
		categories:    deps.Categories,
		geocoder:      deps.Geocoder,
		validator:     deps.Validator,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

const referenceCodeAttempts = 3

// NewReferenceCode derives a 12 character uppercase code from a random uuid.
func NewReferenceCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Coordinate converts a float degree value to the stored NUMERIC(9,6) precision.
func Coordinate(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}

// Create stores a new request, its creation activity and the worker fan-out in one transaction,
// then hands the notifications to the delivery transport.
func (s *DispatchService) Create(ctx context.Context, actor models.Actor, req dto.CreateServiceRequest) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleCustomer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only customers can create service requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid service request payload")
	}

	var categoryID *string
	if req.CategoryID != nil && strings.TrimSpace(*req.CategoryID) != "" {
		id := strings.TrimSpace(*req.CategoryID)
		if _, err := s.categories.RequireActive(ctx, id); err != nil {
			return nil, err
		}
		categoryID = &id
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityStandard
	}
	duration := models.DefaultEstimatedDurationMinutes
	if req.EstimatedDurationMinutes != nil {
		duration = *req.EstimatedDurationMinutes
	}

	address := strings.TrimSpace(req.Address)
	postcode := strings.TrimSpace(req.Postcode)
	if address == "" && s.geocoder != nil {
		foundAddress, foundPostcode := s.geocoder.Lookup(ctx, *req.Latitude, *req.Longitude)
		if foundAddress != "" {
			address = foundAddress
		}
		if foundPostcode != "" {
			postcode = foundPostcode
		}
	}

	now := s.now()
	request := &models.ServiceRequest{
		ID:                       uuid.NewString(),
		Title:                    strings.TrimSpace(req.Title),
		Description:              req.Description,
		CustomerID:               actor.UserID,
		CategoryID:               categoryID,
		Status:                   models.StatusPending,
		Priority:                 priority,
		Latitude:                 Coordinate(*req.Latitude),
		Longitude:                Coordinate(*req.Longitude),
		Address:                  address,
		Postcode:                 postcode,
		ScheduledStart:           req.ScheduledStart,
		CustomerNotes:            req.CustomerNotes,
		EstimatedDurationMinutes: duration,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	pool, err := s.workers.ListCandidates(ctx, models.WorkerCandidateFilter{
		AvailableOnly: true,
		LocatedOnly:   true,
		CategoryID:    categoryID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workers")
	}
	matches := EligibleWorkers(*request, pool, nil)
	activity := s.activity(request.ID, actor, fmt.Sprintf("Request created with priority %s.", priority), "")

	var intents []models.NotificationIntent
	for attempt := 1; ; attempt++ {
		request.ReferenceCode = NewReferenceCode()
		intents = RequestCreatedIntents(*request, matches)
		err = s.requests.Create(ctx, request, activity, intents)
		if err == nil {
			break
		}
		if !database.IsUniqueViolation(err) || attempt >= referenceCodeAttempts {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create service request")
		}
		activity.ID = ""
	}

	s.logger.Info("service request created",
		zap.String("request_id", request.ID),
		zap.String("reference_code", request.ReferenceCode),
		zap.String("priority", string(priority)),
		zap.Int("notified_workers", len(intents)))
	s.notifications.Dispatch(intents)
	return request, nil
}

// Get returns a request visible to the actor.
func (s *DispatchService) Get(ctx context.Context, actor models.Actor, id string) (*models.ServiceRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, req) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "service request not found")
	}
	return req, nil
}

// List returns requests scoped to the actor's role.
func (s *DispatchService) List(ctx context.Context, actor models.Actor, query dto.RequestListQuery) ([]models.ServiceRequest, *models.Pagination, error) {
	filter := models.ServiceRequestFilter{Statuses: query.Status, Priority: query.Priority}
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	if query.Priority != "" && !query.Priority.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", query.Priority))
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleCustomer:
		filter.CustomerID = actor.UserID
	case models.RoleWorker:
		filter.WorkerID = actor.UserID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	page, size := normalisePage(query.Page, query.PageSize)
	filter.Limit = size
	filter.Offset = (page - 1) * size
	total, err := s.requests.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count service requests")
	}
	items, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list service requests")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListActivities returns the audit trail of a request visible to the actor.
func (s *DispatchService) ListActivities(ctx context.Context, actor models.Actor, id string) ([]models.RequestActivity, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	items, err := s.requests.ListActivities(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	return items, nil
}

func (s *DispatchService) load(ctx context.Context, id string) (*models.ServiceRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service request")
	}
	return req, nil
}

// canView mirrors role scoping: admins see everything, customers their own requests,
// workers their assignments plus anything still pending.
func canView(actor models.Actor, req *models.ServiceRequest) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return req.CustomerID == actor.UserID
	case models.RoleWorker:
		return req.AssignedTo(actor.UserID) || req.Status == models.StatusPending
	}
	return false
}

func (s *DispatchService) activity(requestID string, actor models.Actor, message, notes string) *models.RequestActivity {
	if notes = strings.TrimSpace(notes); notes != "" {
		message = fmt.Sprintf("%s Notes: %s", message, notes)
	}
	activity := &models.RequestActivity{ServiceRequestID: requestID, Message: message}
	if actor.UserID != "" {
		id := actor.UserID
		activity.ActorID = &id
	}
	return activity
}
