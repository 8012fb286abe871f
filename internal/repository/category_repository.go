package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dispatch-api/internal/models"
)

// CategoryRepository reads service categories.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs the repository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListActive returns active categories ordered by name.
func (r *CategoryRepository) ListActive(ctx context.Context) ([]models.ServiceCategory, error) {
	const query = `SELECT id, name, description, is_active, created_at FROM service_categories WHERE is_active = TRUE ORDER BY name ASC`
	var items []models.ServiceCategory
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

// GetByID fetches a category regardless of its active flag.
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*models.ServiceCategory, error) {
	const query = `SELECT id, name, description, is_active, created_at FROM service_categories WHERE id = $1`
	var category models.ServiceCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &category, nil
}
