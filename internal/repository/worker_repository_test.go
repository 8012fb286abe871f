package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/models"
)

var workerRowColumns = []string{
	"user_id", "email", "full_name", "is_active", "skills", "is_available", "service_radius_km",
	"current_latitude", "current_longitude", "location_updated_at", "last_available_at", "average_rating", "total_completed_jobs", "category_id",
}

func TestWorkerRepositoryListCandidates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkerRepository(db)

	category := "cat-1"
	minRating := decimal.RequireFromString("4")
	rows := sqlmock.NewRows(workerRowColumns).
		AddRow("worker-1", "w1@example.com", "Wendy", true, "plumbing", true, 15, "51.510000", "-0.130000", nil, nil, "4.80", 12, "cat-1").
		AddRow("worker-2", "w2@example.com", "Walt", true, "", true, 20, nil, nil, nil, nil, "4.10", 3, "cat-1")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.is_active = TRUE AND wp.is_available = TRUE AND wp.current_latitude IS NOT NULL AND wp.current_longitude IS NOT NULL AND wp.category_id = $1 AND wp.average_rating >= $2 ORDER BY wp.average_rating DESC")).
		WithArgs("cat-1", minRating).
		WillReturnRows(rows)

	items, err := repo.ListCandidates(context.Background(), models.WorkerCandidateFilter{
		AvailableOnly: true, LocatedOnly: true, CategoryID: &category, MinRating: &minRating,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	point, ok := items[0].Location()
	require.True(t, ok)
	assert.InDelta(t, 51.51, point.Lat, 1e-9)
	_, ok = items[1].Location()
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerRepositoryUpdateAvailability(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkerRepository(db)

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	lat := decimal.RequireFromString("51.5074")
	lon := decimal.RequireFromString("-0.1278")
	radius := 10
	mock.ExpectExec(regexp.QuoteMeta("UPDATE worker_profiles SET is_available = $1, last_available_at = $2, current_latitude = $3, current_longitude = $4, location_updated_at = $5, service_radius_km = $6 WHERE user_id = $7")).
		WithArgs(true, at, lat, lon, at, radius, "worker-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE wp.user_id = $1")).
		WithArgs("worker-1").
		WillReturnRows(sqlmock.NewRows(workerRowColumns).
			AddRow("worker-1", "w1@example.com", "Wendy", true, "", true, 10, "51.507400", "-0.127800", at, at, "0", 0, nil))

	profile, err := repo.UpdateAvailability(context.Background(), models.WorkerAvailabilityUpdate{
		UserID: "worker-1", Available: true, Latitude: &lat, Longitude: &lon, ServiceRadiusKm: &radius, At: at,
	})
	require.NoError(t, err)
	assert.True(t, profile.Available)
	assert.Equal(t, 10, profile.ServiceRadiusKm)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerRepositoryUpdateLocationMissingProfile(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkerRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE worker_profiles SET current_latitude = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLocation(context.Background(), "ghost", decimal.Zero, decimal.Zero, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
