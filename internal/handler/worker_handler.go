package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/response"
)

type availabilityService interface {
	UpdateAvailability(ctx context.Context, actor models.Actor, req dto.AvailabilityRequest) (*models.WorkerProfile, error)
}

// WorkerHandler manages the caller's worker profile.
type WorkerHandler struct {
	workers availabilityService
}

// NewWorkerHandler constructs a WorkerHandler.
func NewWorkerHandler(workers availabilityService) *WorkerHandler {
	return &WorkerHandler{workers: workers}
}

// UpdateAvailability godoc
// @Summary Toggle availability and update the worker's position, radius or category
// @Tags Workers
// @Accept json
// @Produce json
// @Param payload body dto.AvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Router /workers/availability [patch]
func (h *WorkerHandler) UpdateAvailability(c *gin.Context) {
	var req dto.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	profile, err := h.workers.UpdateAvailability(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}
