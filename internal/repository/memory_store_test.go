package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/models"
)

func seedMemoryRequest(t *testing.T, store *MemoryStore, id string) {
	t.Helper()
	err := store.Requests().Create(context.Background(), &models.ServiceRequest{
		ID:            id,
		ReferenceCode: "REF" + id,
		CustomerID:    "cust-1",
		Status:        models.StatusPending,
		Priority:      models.PriorityStandard,
		Latitude:      decimal.RequireFromString("51.5074"),
		Longitude:     decimal.RequireFromString("-0.1278"),
	}, nil, nil)
	require.NoError(t, err)
}

func TestMemoryStoreNotificationConflictPolicies(t *testing.T) {
	store := NewMemoryStore(time.Second)
	seedMemoryRequest(t, store, "req-1")
	ctx := context.Background()
	ref := "req-1"

	created := models.NotificationIntent{RecipientID: "worker-1", Event: models.EventRequestCreated, Title: "first", ReferenceRequestID: &ref}
	require.NoError(t, store.Notifications().Write(ctx, []models.NotificationIntent{created}))
	created.Title = "second"
	require.NoError(t, store.Notifications().Write(ctx, []models.NotificationIntent{created}))

	items, total, err := store.Notifications().List(ctx, models.NotificationFilter{RecipientID: "worker-1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "first", items[0].Title)

	n, err := store.Notifications().MarkAllRead(ctx, "worker-1", time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	accepted := models.NotificationIntent{RecipientID: "cust-1", Event: models.EventRequestAccepted, Title: "v1", ReferenceRequestID: &ref, OnConflict: models.ConflictUpdate}
	require.NoError(t, store.Notifications().Write(ctx, []models.NotificationIntent{accepted}))
	_, err = store.Notifications().MarkAllRead(ctx, "cust-1", time.Now().UTC())
	require.NoError(t, err)
	accepted.Title = "v2"
	require.NoError(t, store.Notifications().Write(ctx, []models.NotificationIntent{accepted}))

	items, total, err = store.Notifications().List(ctx, models.NotificationFilter{RecipientID: "cust-1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "v2", items[0].Title)
	assert.False(t, items[0].IsRead)
	assert.Nil(t, items[0].ReadAt)
}

func TestMemoryStoreTransitionLockTimeout(t *testing.T) {
	store := NewMemoryStore(20 * time.Millisecond)
	seedMemoryRequest(t, store, "req-1")
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = store.Requests().Transition(ctx, "req-1", func(current *models.ServiceRequest) (*TransitionPlan, error) {
			close(entered)
			<-release
			return nil, nil
		})
	}()
	<-entered

	_, err := store.Requests().Transition(ctx, "req-1", func(*models.ServiceRequest) (*TransitionPlan, error) {
		t.Fatal("callback must not run without the lock")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	close(release)
	wg.Wait()
}

func TestMemoryStoreTransitionMissingRow(t *testing.T) {
	store := NewMemoryStore(time.Second)
	_, err := store.Requests().Transition(context.Background(), "nope", func(*models.ServiceRequest) (*TransitionPlan, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryStoreTransitionUpdatesOnlyLifecycleColumns(t *testing.T) {
	store := NewMemoryStore(time.Second)
	seedMemoryRequest(t, store, "req-1")
	store.PutWorker(models.WorkerProfile{UserID: "worker-1", Active: true})
	ctx := context.Background()

	worker := "worker-1"
	updated, err := store.Requests().Transition(ctx, "req-1", func(current *models.ServiceRequest) (*TransitionPlan, error) {
		next := *current
		next.Status = models.StatusCompleted
		next.WorkerID = &worker
		next.Title = "changed"
		return &TransitionPlan{Next: &next, IncrementCompletedFor: worker}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.NotEqual(t, "changed", updated.Title)

	profile, err := store.Workers().GetByUserID(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.TotalCompletedJobs)
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	store := NewMemoryStore(time.Second)
	ctx := context.Background()
	category := "cat-1"
	other := "cat-2"
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, cat := range []*string{nil, &category, &other} {
		require.NoError(t, store.Requests().Create(ctx, &models.ServiceRequest{
			ID: string(rune('a' + i)), ReferenceCode: string(rune('A' + i)), CustomerID: "cust-1",
			Status: models.StatusPending, CategoryID: cat, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, nil, nil))
	}

	items, err := store.Requests().List(ctx, models.ServiceRequestFilter{
		Statuses:    []models.RequestStatus{models.StatusPending},
		WorkerScope: &models.CategoryScope{CategoryID: &category},
		Order:       models.OrderOldest,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)

	items, err = store.Requests().List(ctx, models.ServiceRequestFilter{WorkerScope: &models.CategoryScope{}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestMemoryStoreDeclineUpsert(t *testing.T) {
	store := NewMemoryStore(time.Second)
	seedMemoryRequest(t, store, "req-1")
	ctx := context.Background()

	first := &models.WorkerJobDecline{WorkerID: "worker-1", ServiceRequestID: "req-1", Reason: "Too far"}
	require.NoError(t, store.Declines().Upsert(ctx, first, nil))
	second := &models.WorkerJobDecline{WorkerID: "worker-1", ServiceRequestID: "req-1", Reason: "Busy"}
	require.NoError(t, store.Declines().Upsert(ctx, second, nil))
	assert.Equal(t, first.ID, second.ID)

	jobs, err := store.Declines().ListDeclinedJobs(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Busy", jobs[0].DeclineReason)
}
