package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/pkg/response"
)

type categoryLister interface {
	ListActive(ctx context.Context) ([]models.ServiceCategory, error)
}

// CategoryHandler lists service categories.
type CategoryHandler struct {
	categories categoryLister
}

// NewCategoryHandler constructs a CategoryHandler.
func NewCategoryHandler(categories categoryLister) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// List godoc
// @Summary List active service categories
// @Tags Categories
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	items, err := h.categories.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
