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

type availabilityServiceMock struct {
	last dto.AvailabilityRequest
	err  error
}

func (m *availabilityServiceMock) UpdateAvailability(ctx context.Context, actor models.Actor, req dto.AvailabilityRequest) (*models.WorkerProfile, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.WorkerProfile{UserID: actor.UserID, Available: *req.IsAvailable}, nil
}

func TestWorkerHandlerUpdateAvailability(t *testing.T) {
	mockSvc := &availabilityServiceMock{}
	handler := NewWorkerHandler(mockSvc)

	c, w := newTestContext(http.MethodPatch, "/workers/availability",
		[]byte(`{"is_available":true,"current_latitude":51.5,"current_longitude":-0.12,"service_radius_km":15}`), workerClaims)
	handler.UpdateAvailability(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.last.Latitude)
	assert.Equal(t, 51.5, *mockSvc.last.Latitude)
	assert.Equal(t, 15, *mockSvc.last.ServiceRadiusKm)

	mockSvc.err = appErrors.Clone(appErrors.ErrValidation, "current location is required to become available")
	c, w = newTestContext(http.MethodPatch, "/workers/availability", []byte(`{"is_available":true}`), workerClaims)
	handler.UpdateAvailability(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodPatch, "/workers/availability", []byte(`[]`), workerClaims)
	handler.UpdateAvailability(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
