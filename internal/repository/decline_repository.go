package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dispatch-api/internal/models"
)

// DeclineRepository persists worker job declines.
type DeclineRepository struct {
	db *sqlx.DB
}

// NewDeclineRepository constructs the repository.
func NewDeclineRepository(db *sqlx.DB) *DeclineRepository {
	return &DeclineRepository{db: db}
}

// Upsert records a decline, refreshing the reason when the worker declines the same request again.
// The activity row is written in the same transaction.
func (r *DeclineRepository) Upsert(ctx context.Context, decline *models.WorkerJobDecline, activity *models.RequestActivity) (err error) {
	if decline.ID == "" {
		decline.ID = uuid.NewString()
	}
	if decline.CreatedAt.IsZero() {
		decline.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decline: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO worker_job_declines (id, worker_id, service_request_id, reason, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (worker_id, service_request_id) DO UPDATE SET reason = EXCLUDED.reason
	RETURNING id, created_at`
	row := tx.QueryRowxContext(ctx, query, decline.ID, decline.WorkerID, decline.ServiceRequestID, decline.Reason, decline.CreatedAt)
	if err = row.Scan(&decline.ID, &decline.CreatedAt); err != nil {
		return fmt.Errorf("upsert decline: %w", err)
	}
	if activity != nil {
		if err = insertActivity(ctx, tx, activity, time.Now().UTC()); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit decline: %w", err)
	}
	return nil
}

// WorkerIDsForRequest returns the workers that declined a request.
func (r *DeclineRepository) WorkerIDsForRequest(ctx context.Context, requestID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT worker_id FROM worker_job_declines WHERE service_request_id = $1`, requestID); err != nil {
		return nil, fmt.Errorf("list declining workers: %w", err)
	}
	return ids, nil
}

// RequestIDsForWorker returns the requests a worker declined.
func (r *DeclineRepository) RequestIDsForWorker(ctx context.Context, workerID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT service_request_id FROM worker_job_declines WHERE worker_id = $1`, workerID); err != nil {
		return nil, fmt.Errorf("list declined requests: %w", err)
	}
	return ids, nil
}

// ListDeclinedJobs returns the declined requests of a worker, most recent decline first.
func (r *DeclineRepository) ListDeclinedJobs(ctx context.Context, workerID string) ([]models.DeclinedJob, error) {
	const query = `SELECT sr.id, sr.reference_code, sr.title, sr.description, sr.customer_id, sr.worker_id, sr.category_id,
		sr.status, sr.priority, sr.location_latitude, sr.location_longitude, sr.address, sr.postcode, sr.scheduled_start,
		sr.accepted_at, sr.completed_at, sr.cancelled_at, sr.customer_notes, sr.admin_notes, sr.estimated_duration_minutes,
		sr.created_at, sr.updated_at, d.reason AS decline_reason, d.created_at AS declined_at
	FROM worker_job_declines d
	JOIN service_requests sr ON sr.id = d.service_request_id
	WHERE d.worker_id = $1
	ORDER BY d.created_at DESC, d.id ASC`
	var items []models.DeclinedJob
	if err := r.db.SelectContext(ctx, &items, query, workerID); err != nil {
		return nil, fmt.Errorf("list declined jobs: %w", err)
	}
	return items, nil
}
