package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
)

const categoriesCacheKey = "categories:active"

// CategoryStore reads the category catalogue.
type CategoryStore interface {
	ListActive(ctx context.Context) ([]models.ServiceCategory, error)
	GetByID(ctx context.Context, id string) (*models.ServiceCategory, error)
}

// CategoryService serves the category catalogue through the cache.
type CategoryService struct {
	store  CategoryStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCategoryService constructs a CategoryService. cache may be nil.
func NewCategoryService(store CategoryStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{store: store, cache: cache, ttl: ttl, logger: logger}
}

// ListActive returns active categories.
func (s *CategoryService) ListActive(ctx context.Context) ([]models.ServiceCategory, error) {
	var cached []models.ServiceCategory
	if s.cache.Get(ctx, categoriesCacheKey, &cached) {
		return cached, nil
	}
	items, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	s.cache.Set(ctx, categoriesCacheKey, items, s.ttl)
	return items, nil
}

// RequireActive returns the category or a validation error when it is unknown or inactive.
func (s *CategoryService) RequireActive(ctx context.Context, id string) (*models.ServiceCategory, error) {
	category, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "category does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	if !category.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category is not active")
	}
	return category, nil
}
