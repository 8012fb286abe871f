package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/response"
)

type inboxService interface {
	List(ctx context.Context, actor models.Actor, query dto.NotificationListQuery) ([]models.Notification, *models.Pagination, error)
	MarkRead(ctx context.Context, actor models.Actor, req dto.MarkNotificationsRequest) (int64, error)
}

// NotificationHandler exposes the caller's notification inbox.
type NotificationHandler struct {
	inbox inboxService
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(inbox inboxService) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// List godoc
// @Summary List the caller's notifications, newest first
// @Tags Notifications
// @Produce json
// @Param is_read query bool false "Filter by read state"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	var query dto.NotificationListQuery
	if raw := c.Query("is_read"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "is_read must be a boolean"))
			return
		}
		query.IsRead = &val
	}
	query.Page, query.PageSize = pageParams(c)

	items, pagination, err := h.inbox.List(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, items, pagination)
}

// MarkRead godoc
// @Summary Mark notifications as read
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.MarkNotificationsRequest true "ids or all"
// @Success 200 {object} response.Envelope
// @Router /notifications/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req dto.MarkNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notification payload"))
		return
	}
	updated, err := h.inbox.MarkRead(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MarkNotificationsResponse{Updated: updated}, nil)
}
