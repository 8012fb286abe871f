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

type jobService interface {
	ListEligibleJobs(ctx context.Context, actor models.Actor) ([]dto.JobView, error)
	NearbyJobs(ctx context.Context, actor models.Actor, query dto.NearbyJobsQuery) ([]dto.JobView, error)
	ActiveJobs(ctx context.Context, actor models.Actor) ([]models.ServiceRequest, error)
	CompletedJobs(ctx context.Context, actor models.Actor) ([]models.ServiceRequest, error)
	DeclinedJobs(ctx context.Context, actor models.Actor) ([]dto.DeclinedJobView, error)
}

// JobHandler serves the worker's job board.
type JobHandler struct {
	jobs jobService
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(jobs jobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Pending godoc
// @Summary Pending jobs the worker is eligible for, oldest first
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/pending [get]
func (h *JobHandler) Pending(c *gin.Context) {
	items, err := h.jobs.ListEligibleJobs(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Nearby godoc
// @Summary Pending jobs around an explicit position
// @Tags Jobs
// @Produce json
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Param max_distance_km query number false "Defaults to the worker's service radius"
// @Param category_id query string false "Defaults to the worker's category"
// @Success 200 {object} response.Envelope
// @Router /jobs/nearby [get]
func (h *JobHandler) Nearby(c *gin.Context) {
	var query dto.NearbyJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid nearby query"))
		return
	}
	items, err := h.jobs.NearbyJobs(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Active godoc
// @Summary Jobs assigned to the worker that are accepted or in progress
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/active [get]
func (h *JobHandler) Active(c *gin.Context) {
	items, err := h.jobs.ActiveJobs(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Completed godoc
// @Summary Jobs the worker completed, most recent first
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/completed [get]
func (h *JobHandler) Completed(c *gin.Context) {
	items, err := h.jobs.CompletedJobs(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Declined godoc
// @Summary Jobs the worker declined
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/declined [get]
func (h *JobHandler) Declined(c *gin.Context) {
	items, err := h.jobs.DeclinedJobs(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
