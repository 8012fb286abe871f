package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/internal/service"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, actor models.Actor, req dto.CreateServiceRequest) (*models.ServiceRequest, error)
	List(ctx context.Context, actor models.Actor, query dto.RequestListQuery) ([]models.ServiceRequest, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.ServiceRequest, error)
	ListActivities(ctx context.Context, actor models.Actor, id string) ([]models.RequestActivity, error)
	Accept(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error)
	Start(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error)
	Complete(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error)
	Cancel(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error)
	Decline(ctx context.Context, actor models.Actor, id string, req dto.DeclineRequest) (*models.WorkerJobDecline, error)
	UpdateLocation(ctx context.Context, actor models.Actor, id string, req dto.LocationUpdateRequest) (*models.ServiceRequest, error)
	TrackWorker(ctx context.Context, actor models.Actor, id string) (*dto.TrackingResponse, error)
	RenotifyWorkers(ctx context.Context, actor models.Actor, id string) (int, error)
}

type jobSheetExporter interface {
	JobSheet(ctx context.Context, actor models.Actor, id, format string) (*service.ExportResult, error)
}

type transitionFunc func(ctx context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.ServiceRequest, error)

// RequestHandler exposes the service request lifecycle.
type RequestHandler struct {
	requests requestService
	exporter jobSheetExporter
}

// NewRequestHandler constructs a RequestHandler. A nil exporter disables job-sheet exports.
func NewRequestHandler(requests requestService, exporter jobSheetExporter) *RequestHandler {
	return &RequestHandler{requests: requests, exporter: exporter}
}

// Create godoc
// @Summary Create a service request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateServiceRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	created, err := h.requests.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List service requests visible to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param priority query string false "STANDARD or EMERGENCY"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	query := dto.RequestListQuery{Priority: models.RequestPriority(strings.ToUpper(c.Query("priority")))}
	for _, status := range csvQuery(c, "status") {
		query.Status = append(query.Status, models.RequestStatus(strings.ToUpper(status)))
	}
	query.Page, query.PageSize = pageParams(c)

	items, pagination, err := h.requests.List(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, items, pagination)
}

// Get godoc
// @Summary Get a service request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	item, err := h.requests.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Activities godoc
// @Summary List the activity log of a request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/activities [get]
func (h *RequestHandler) Activities(c *gin.Context) {
	items, err := h.requests.ListActivities(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Accept godoc
// @Summary Accept a pending request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.TransitionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /requests/{id}/accept [post]
func (h *RequestHandler) Accept(c *gin.Context) { h.transition(c, h.requests.Accept) }

// Start godoc
// @Summary Mark an accepted request in progress
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.TransitionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id}/start [post]
func (h *RequestHandler) Start(c *gin.Context) { h.transition(c, h.requests.Start) }

// Complete godoc
// @Summary Complete an in-progress request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.TransitionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id}/complete [post]
func (h *RequestHandler) Complete(c *gin.Context) { h.transition(c, h.requests.Complete) }

// Cancel godoc
// @Summary Cancel a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.TransitionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) { h.transition(c, h.requests.Cancel) }

func (h *RequestHandler) transition(c *gin.Context, fn transitionFunc) {
	var req dto.TransitionRequest
	if err := bindOptionalJSON(c, &req, "invalid transition payload"); err != nil {
		response.Error(c, err)
		return
	}
	item, err := fn(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Decline godoc
// @Summary Hide a pending request from the calling worker
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DeclineRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/decline [post]
func (h *RequestHandler) Decline(c *gin.Context) {
	var req dto.DeclineRequest
	if err := bindOptionalJSON(c, &req, "invalid decline payload"); err != nil {
		response.Error(c, err)
		return
	}
	if _, err := h.requests.Decline(c.Request.Context(), actorFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DeclineResponse{
		Detail:  "Job declined. This job will no longer appear in your search results.",
		Message: "Cancelled for you",
	}, nil)
}

// Location godoc
// @Summary Report the assigned worker's position
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.LocationUpdateRequest true "Position"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/location [post]
func (h *RequestHandler) Location(c *gin.Context) {
	var req dto.LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid location payload"))
		return
	}
	item, err := h.requests.UpdateLocation(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Track godoc
// @Summary Track the assigned worker
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/track [get]
func (h *RequestHandler) Track(c *gin.Context) {
	tracking, err := h.requests.TrackWorker(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tracking, nil)
}

// Renotify godoc
// @Summary Re-send REQUEST_CREATED to eligible workers
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/renotify [post]
func (h *RequestHandler) Renotify(c *gin.Context) {
	n, err := h.requests.RenotifyWorkers(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"notified": n}, nil)
}

// Export godoc
// @Summary Download the job sheet of a request
// @Tags Requests
// @Produce application/pdf,text/csv,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Request ID"
// @Param format query string false "pdf, csv or xlsx"
// @Success 200 {file} file
// @Router /requests/{id}/export [get]
func (h *RequestHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	result, err := h.exporter.JobSheet(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
