package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/internal/service"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/response"
)

type customerRequestService interface {
	CustomerRequests(ctx context.Context, actor models.Actor, scope string) ([]models.ServiceRequest, error)
}

type workerSearcher interface {
	Search(ctx context.Context, query dto.WorkerSearchQuery) ([]dto.WorkerSearchResult, error)
}

// CustomerHandler serves the customer dashboard views.
type CustomerHandler struct {
	requests customerRequestService
	workers  workerSearcher
}

// NewCustomerHandler constructs a CustomerHandler.
func NewCustomerHandler(requests customerRequestService, workers workerSearcher) *CustomerHandler {
	return &CustomerHandler{requests: requests, workers: workers}
}

// ActiveRequests godoc
// @Summary The customer's accepted and in-progress requests
// @Tags Customer
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /customer/requests/active [get]
func (h *CustomerHandler) ActiveRequests(c *gin.Context) {
	h.scoped(c, service.CustomerScopeActive)
}

// PendingRequests godoc
// @Summary The customer's requests still waiting for a worker
// @Tags Customer
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /customer/requests/pending [get]
func (h *CustomerHandler) PendingRequests(c *gin.Context) {
	h.scoped(c, service.CustomerScopePending)
}

// CompletedRequests godoc
// @Summary The customer's completed requests
// @Tags Customer
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /customer/requests/completed [get]
func (h *CustomerHandler) CompletedRequests(c *gin.Context) {
	h.scoped(c, service.CustomerScopeCompleted)
}

func (h *CustomerHandler) scoped(c *gin.Context, scope string) {
	items, err := h.requests.CustomerRequests(c.Request.Context(), actorFromContext(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// SearchWorkers godoc
// @Summary Search active workers
// @Tags Customer
// @Produce json
// @Param category_id query string false "Category"
// @Param min_rating query number false "Minimum rating 0..5"
// @Param lat query number false "Origin latitude"
// @Param lng query number false "Origin longitude"
// @Param max_distance_km query number false "Defaults to 50 when an origin is given"
// @Success 200 {object} response.Envelope
// @Router /customer/workers/search [get]
func (h *CustomerHandler) SearchWorkers(c *gin.Context) {
	var query dto.WorkerSearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid worker search"))
		return
	}
	items, err := h.workers.Search(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
