package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/models"
)

func TestNotificationRepositoryWriteSplitsByPolicy(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	ref := "req-1"
	intents := []models.NotificationIntent{
		{RecipientID: "worker-1", Event: models.EventRequestCreated, Category: models.NotificationCategoryRequest, Title: "New job", ReferenceRequestID: &ref},
		{RecipientID: "cust-1", Event: models.EventRequestAccepted, Category: models.NotificationCategoryRequest, Title: "Accepted", ReferenceRequestID: &ref, OnConflict: models.ConflictUpdate},
		{RecipientID: "worker-2", Event: models.EventRequestCreated, Category: models.NotificationCategoryRequest, Title: "New job", ReferenceRequestID: &ref},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "cust-1", models.NotificationCategoryRequest, models.EventRequestAccepted, "Accepted", "",
			sqlmock.AnyArg(), &ref, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9), ($10, $11, $12, $13, $14, $15, $16, $17, $18) ON CONFLICT (recipient_id, event, reference_request_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.Write(context.Background(), intents))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryWriteBatchesLargeFanOut(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	ref := "req-1"
	intents := make([]models.NotificationIntent, insertBatchSize+3)
	for i := range intents {
		intents[i] = models.NotificationIntent{
			RecipientID: fmt.Sprintf("worker-%d", i), Event: models.EventRequestCreated,
			Category: models.NotificationCategoryRequest, ReferenceRequestID: &ref,
		}
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, insertBatchSize))
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9), ($10,")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, repo.Write(context.Background(), intents))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryWriteNothing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	require.NoError(t, repo.Write(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	unread := false
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = $2")).
		WithArgs("cust-1", false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id ASC LIMIT 50 OFFSET 0")).
		WithArgs("cust-1", false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_id", "category", "event", "title", "body", "data", "reference_request_id", "is_read", "read_at", "created_at"}).
			AddRow("n-1", "cust-1", "REQUEST", "REQUEST_ACCEPTED", "Accepted", "", []byte(`{"request_id":"req-1"}`), "req-1", false, nil, at))

	items, total, err := repo.List(context.Background(), models.NotificationFilter{RecipientID: "cust-1", IsRead: &unread})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "req-1", items[0].Data["request_id"])
	assert.Equal(t, models.EventRequestAccepted, items[0].Event)
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("id = ANY($3)")).
		WithArgs(at, "cust-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkRead(context.Background(), "cust-1", []string{"n-1", "n-2"}, at)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.MarkRead(context.Background(), "cust-1", nil, at)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
