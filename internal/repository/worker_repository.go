package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/dispatch-api/internal/models"
)

const workerColumns = `wp.user_id, u.email, u.full_name, u.is_active, wp.skills, wp.is_available, wp.service_radius_km,
	wp.current_latitude, wp.current_longitude, wp.location_updated_at, wp.last_available_at, wp.average_rating, wp.total_completed_jobs, wp.category_id`

const workerFrom = ` FROM worker_profiles wp JOIN users u ON u.id = wp.user_id`

// WorkerRepository reads and updates worker dispatch profiles.
type WorkerRepository struct {
	db *sqlx.DB
}

// NewWorkerRepository constructs the repository.
func NewWorkerRepository(db *sqlx.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// GetByUserID returns a profile. Missing profiles surface sql.ErrNoRows.
func (r *WorkerRepository) GetByUserID(ctx context.Context, userID string) (*models.WorkerProfile, error) {
	query := `SELECT ` + workerColumns + workerFrom + ` WHERE wp.user_id = $1`
	var profile models.WorkerProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, fmt.Errorf("get worker profile %s: %w", userID, err)
	}
	return &profile, nil
}

// ListCandidates loads the worker pool for matching. Only active accounts are returned.
func (r *WorkerRepository) ListCandidates(ctx context.Context, filter models.WorkerCandidateFilter) ([]models.WorkerProfile, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + workerColumns + workerFrom)
	conditions := []string{"u.is_active = TRUE"}
	args := make([]interface{}, 0, 3)
	if filter.AvailableOnly {
		conditions = append(conditions, "wp.is_available = TRUE")
	}
	if filter.LocatedOnly {
		conditions = append(conditions, "wp.current_latitude IS NOT NULL", "wp.current_longitude IS NOT NULL")
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("wp.category_id = $%d", len(args)))
	}
	if filter.MinRating != nil {
		args = append(args, *filter.MinRating)
		conditions = append(conditions, fmt.Sprintf("wp.average_rating >= $%d", len(args)))
	}
	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY wp.average_rating DESC, wp.total_completed_jobs DESC, wp.user_id ASC")
	if filter.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	var items []models.WorkerProfile
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list worker candidates: %w", err)
	}
	return items, nil
}

// UpdateAvailability writes the mutable profile fields and returns the fresh profile.
// last_available_at moves only when the worker switches to available.
func (r *WorkerRepository) UpdateAvailability(ctx context.Context, update models.WorkerAvailabilityUpdate) (*models.WorkerProfile, error) {
	setParts := []string{"is_available = $1"}
	args := []interface{}{update.Available}
	if update.Available {
		args = append(args, update.At)
		setParts = append(setParts, fmt.Sprintf("last_available_at = $%d", len(args)))
	}
	if update.Latitude != nil && update.Longitude != nil {
		args = append(args, *update.Latitude, *update.Longitude, update.At)
		setParts = append(setParts,
			fmt.Sprintf("current_latitude = $%d", len(args)-2),
			fmt.Sprintf("current_longitude = $%d", len(args)-1),
			fmt.Sprintf("location_updated_at = $%d", len(args)))
	}
	if update.ServiceRadiusKm != nil {
		args = append(args, *update.ServiceRadiusKm)
		setParts = append(setParts, fmt.Sprintf("service_radius_km = $%d", len(args)))
	}
	if update.Skills != nil {
		args = append(args, *update.Skills)
		setParts = append(setParts, fmt.Sprintf("skills = $%d", len(args)))
	}
	if update.SetCategory {
		args = append(args, update.CategoryID)
		setParts = append(setParts, fmt.Sprintf("category_id = $%d", len(args)))
	}
	args = append(args, update.UserID)
	query := fmt.Sprintf("UPDATE worker_profiles SET %s WHERE user_id = $%d", strings.Join(setParts, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update worker availability: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("update worker availability %s: %w", update.UserID, sql.ErrNoRows)
	}
	return r.GetByUserID(ctx, update.UserID)
}

// UpdateLocation records a position report.
func (r *WorkerRepository) UpdateLocation(ctx context.Context, userID string, lat, lon decimal.Decimal, at time.Time) error {
	const query = `UPDATE worker_profiles SET current_latitude = $1, current_longitude = $2, location_updated_at = $3 WHERE user_id = $4`
	res, err := r.db.ExecContext(ctx, query, lat, lon, at, userID)
	if err != nil {
		return fmt.Errorf("update worker location: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update worker location %s: %w", userID, sql.ErrNoRows)
	}
	return nil
}
