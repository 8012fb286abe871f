package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
)

type jobServiceMock struct {
	lastNearby dto.NearbyJobsQuery
	pendingErr error
}

func (m *jobServiceMock) ListEligibleJobs(ctx context.Context, actor models.Actor) ([]dto.JobView, error) {
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	distance := 1.25
	return []dto.JobView{{ServiceRequest: models.ServiceRequest{ID: "req-1"}, DistanceKm: &distance}}, nil
}

func (m *jobServiceMock) NearbyJobs(ctx context.Context, actor models.Actor, query dto.NearbyJobsQuery) ([]dto.JobView, error) {
	m.lastNearby = query
	return nil, nil
}

func (m *jobServiceMock) ActiveJobs(ctx context.Context, actor models.Actor) ([]models.ServiceRequest, error) {
	return []models.ServiceRequest{{ID: "req-2", Status: models.StatusAccepted}}, nil
}

func (m *jobServiceMock) CompletedJobs(ctx context.Context, actor models.Actor) ([]models.ServiceRequest, error) {
	return nil, nil
}

func (m *jobServiceMock) DeclinedJobs(ctx context.Context, actor models.Actor) ([]dto.DeclinedJobView, error) {
	return []dto.DeclinedJobView{{DeclineReason: "Too far"}}, nil
}

func TestJobHandlerPending(t *testing.T) {
	handler := NewJobHandler(&jobServiceMock{})
	c, w := newTestContext(http.MethodGet, "/jobs/pending", nil, workerClaims)
	handler.Pending(c)

	require.Equal(t, http.StatusOK, w.Code)
	items := decodeEnvelope(t, w)["data"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, 1.25, items[0].(map[string]interface{})["distance_km"])

	handler = NewJobHandler(&jobServiceMock{pendingErr: appErrors.ErrForbidden})
	c, w = newTestContext(http.MethodGet, "/jobs/pending", nil, customerClaims)
	handler.Pending(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJobHandlerNearbyBindsQuery(t *testing.T) {
	mockSvc := &jobServiceMock{}
	handler := NewJobHandler(mockSvc)
	c, w := newTestContext(http.MethodGet, "/jobs/nearby?lat=51.5&lng=-0.12&max_distance_km=3&category_id=cat-1", nil, workerClaims)
	handler.Nearby(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastNearby.Latitude)
	assert.Equal(t, 51.5, *mockSvc.lastNearby.Latitude)
	assert.Equal(t, -0.12, *mockSvc.lastNearby.Longitude)
	assert.Equal(t, 3.0, *mockSvc.lastNearby.MaxDistanceKm)
	assert.Equal(t, "cat-1", *mockSvc.lastNearby.CategoryID)

	c, w = newTestContext(http.MethodGet, "/jobs/nearby?lat=north", nil, workerClaims)
	handler.Nearby(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandlerLists(t *testing.T) {
	handler := NewJobHandler(&jobServiceMock{})

	c, w := newTestContext(http.MethodGet, "/jobs/active", nil, workerClaims)
	handler.Active(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(http.MethodGet, "/jobs/completed", nil, workerClaims)
	handler.Completed(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(http.MethodGet, "/jobs/declined", nil, workerClaims)
	handler.Declined(c)
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeEnvelope(t, w)["data"].([]interface{})
	assert.Equal(t, "Too far", items[0].(map[string]interface{})["decline_reason"])
}
