package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/dispatch-api/internal/models"
)

const serviceRequestColumns = `id, reference_code, title, description, customer_id, worker_id, category_id, status, priority,
	location_latitude, location_longitude, address, postcode, scheduled_start, accepted_at, completed_at, cancelled_at,
	customer_notes, admin_notes, estimated_duration_minutes, created_at, updated_at`

// TransitionPlan is what a lifecycle transition persists once the row is locked.
type TransitionPlan struct {
	// Next is the full row after the transition. Its ID must match the locked row.
	Next *models.ServiceRequest
	// Activity is appended in the same transaction when non-nil.
	Activity *models.RequestActivity
	// FollowUps are appended after Activity in the same transaction.
	FollowUps []*models.RequestActivity
	// Notifications are written in the same transaction according to their conflict policy.
	Notifications []models.NotificationIntent
	// IncrementCompletedFor bumps total_completed_jobs for this worker when non-empty.
	IncrementCompletedFor string
}

func (p *TransitionPlan) activities() []*models.RequestActivity {
	out := make([]*models.RequestActivity, 0, len(p.FollowUps)+1)
	if p.Activity != nil {
		out = append(out, p.Activity)
	}
	for _, activity := range p.FollowUps {
		if activity != nil {
			out = append(out, activity)
		}
	}
	return out
}

// TransitionFunc inspects the locked row and returns what to write. Returning an error aborts
// the transaction untouched; the error is passed back to the caller as is.
type TransitionFunc func(current *models.ServiceRequest) (*TransitionPlan, error)

// ServiceRequestRepository persists service requests and their activity log.
type ServiceRequestRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewServiceRequestRepository constructs the repository. lockTimeout bounds the row lock wait of a transition.
func NewServiceRequestRepository(db *sqlx.DB, lockTimeout time.Duration) *ServiceRequestRepository {
	return &ServiceRequestRepository{db: db, lockTimeout: lockTimeout}
}

// Create inserts the request, its creation activity and the notification fan-out in one transaction.
func (r *ServiceRequestRepository) Create(ctx context.Context, req *models.ServiceRequest, activity *models.RequestActivity, intents []models.NotificationIntent) (err error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create service request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO service_requests (` + serviceRequestColumns + `)
	VALUES (:id, :reference_code, :title, :description, :customer_id, :worker_id, :category_id, :status, :priority,
	:location_latitude, :location_longitude, :address, :postcode, :scheduled_start, :accepted_at, :completed_at, :cancelled_at,
	:customer_notes, :admin_notes, :estimated_duration_minutes, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, req); err != nil {
		return fmt.Errorf("insert service request: %w", err)
	}
	if activity != nil {
		if err = insertActivity(ctx, tx, activity, req.CreatedAt); err != nil {
			return err
		}
	}
	if err = writeNotifications(ctx, tx, intents, req.CreatedAt); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create service request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier. Missing rows surface sql.ErrNoRows.
func (r *ServiceRequestRepository) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	const query = `SELECT ` + serviceRequestColumns + ` FROM service_requests WHERE id = $1`
	var req models.ServiceRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, fmt.Errorf("get service request %s: %w", id, err)
	}
	return &req, nil
}

// List returns requests matching the filter.
func (r *ServiceRequestRepository) List(ctx context.Context, filter models.ServiceRequestFilter) ([]models.ServiceRequest, error) {
	query, args := buildRequestListQuery(filter)
	var items []models.ServiceRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	return items, nil
}

// Count returns how many requests match the filter, ignoring ordering and paging.
func (r *ServiceRequestRepository) Count(ctx context.Context, filter models.ServiceRequestFilter) (int, error) {
	where, args := buildRequestWhere(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM service_requests`+where, args...); err != nil {
		return 0, fmt.Errorf("count service requests: %w", err)
	}
	return total, nil
}

func buildRequestWhere(filter models.ServiceRequestFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 8)
	conditions := make([]string, 0, 6)
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		conditions = append(conditions, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.WorkerScope != nil {
		if filter.WorkerScope.CategoryID == nil {
			conditions = append(conditions, "category_id IS NULL")
		} else {
			args = append(args, *filter.WorkerScope.CategoryID)
			conditions = append(conditions, fmt.Sprintf("(category_id IS NULL OR category_id = $%d)", len(args)))
		}
	}
	if len(filter.ExcludeIDs) > 0 {
		args = append(args, pq.Array(filter.ExcludeIDs))
		conditions = append(conditions, fmt.Sprintf("NOT (id = ANY($%d))", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func buildRequestListQuery(filter models.ServiceRequestFilter) (string, []interface{}) {
	where, args := buildRequestWhere(filter)
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + serviceRequestColumns + ` FROM service_requests`)
	builder.WriteString(where)

	switch filter.Order {
	case models.OrderOldest:
		builder.WriteString(" ORDER BY created_at ASC, id ASC")
	case models.OrderRecentlyCompleted:
		builder.WriteString(" ORDER BY completed_at DESC NULLS LAST, id ASC")
	default:
		builder.WriteString(" ORDER BY created_at DESC, id ASC")
	}

	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > 500 {
			limit = 500
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))
	}
	return builder.String(), args
}

// Transition applies a lifecycle change under a row lock:
// lock the row, let fn decide against the locked state, compare-and-swap the status,
// then append the activity, notifications and worker counter before committing.
func (r *ServiceRequestRepository) Transition(ctx context.Context, id string, fn TransitionFunc) (result *models.ServiceRequest, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, lockError(ctx, "begin transition", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return nil, lockError(ctx, "set lock timeout", err)
		}
	}

	const lockQuery = `SELECT ` + serviceRequestColumns + ` FROM service_requests WHERE id = $1 FOR UPDATE`
	var current models.ServiceRequest
	if err = tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		return nil, lockError(ctx, "lock service request", err)
	}

	plan, err := fn(&current)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.Next == nil {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit no-op transition: %w", err)
		}
		return &current, nil
	}

	next := plan.Next
	if next.UpdatedAt.IsZero() || !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = time.Now().UTC()
	}
	const update = `UPDATE service_requests
	SET status = $1, worker_id = $2, accepted_at = $3, completed_at = $4, cancelled_at = $5, admin_notes = $6, updated_at = $7
	WHERE id = $8 AND status = $9`
	res, err := tx.ExecContext(ctx, update,
		next.Status, next.WorkerID, next.AcceptedAt, next.CompletedAt, next.CancelledAt, next.AdminNotes, next.UpdatedAt,
		current.ID, current.Status)
	if err != nil {
		return nil, lockError(ctx, "update service request", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrStaleState
	}

	for _, activity := range plan.activities() {
		if err = insertActivity(ctx, tx, activity, next.UpdatedAt); err != nil {
			return nil, err
		}
	}
	if err = writeNotifications(ctx, tx, plan.Notifications, next.UpdatedAt); err != nil {
		return nil, err
	}
	if plan.IncrementCompletedFor != "" {
		const bump = `UPDATE worker_profiles SET total_completed_jobs = total_completed_jobs + 1 WHERE user_id = $1`
		if _, err = tx.ExecContext(ctx, bump, plan.IncrementCompletedFor); err != nil {
			return nil, fmt.Errorf("increment completed jobs: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, lockError(ctx, "commit transition", err)
	}
	return next, nil
}

// AppendActivity writes a standalone activity row.
func (r *ServiceRequestRepository) AppendActivity(ctx context.Context, activity *models.RequestActivity) error {
	return insertActivity(ctx, r.db, activity, time.Now().UTC())
}

// ListActivities returns the activity log oldest first, with the actor's email when known.
func (r *ServiceRequestRepository) ListActivities(ctx context.Context, requestID string) ([]models.RequestActivity, error) {
	const query = `SELECT a.id, a.service_request_id, a.actor_id, u.email AS actor_email, a.message, a.created_at
	FROM request_activities a
	LEFT JOIN users u ON u.id = a.actor_id
	WHERE a.service_request_id = $1
	ORDER BY a.created_at ASC, a.id ASC`
	var items []models.RequestActivity
	if err := r.db.SelectContext(ctx, &items, query, requestID); err != nil {
		return nil, fmt.Errorf("list request activities: %w", err)
	}
	return items, nil
}

func insertActivity(ctx context.Context, exec sqlx.ExecerContext, activity *models.RequestActivity, at time.Time) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = at
	}
	const query = `INSERT INTO request_activities (id, service_request_id, actor_id, message, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := exec.ExecContext(ctx, query, activity.ID, activity.ServiceRequestID, activity.ActorID, activity.Message, activity.CreatedAt); err != nil {
		return fmt.Errorf("insert request activity: %w", err)
	}
	return nil
}
