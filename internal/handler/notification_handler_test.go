package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
)

type inboxServiceMock struct {
	lastQuery dto.NotificationListQuery
	lastMark  dto.MarkNotificationsRequest
}

func (m *inboxServiceMock) List(ctx context.Context, actor models.Actor, query dto.NotificationListQuery) ([]models.Notification, *models.Pagination, error) {
	m.lastQuery = query
	return []models.Notification{{ID: "n-1", RecipientID: actor.UserID}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *inboxServiceMock) MarkRead(ctx context.Context, actor models.Actor, req dto.MarkNotificationsRequest) (int64, error) {
	m.lastMark = req
	return int64(len(req.IDs)), nil
}

func TestNotificationHandlerList(t *testing.T) {
	mockSvc := &inboxServiceMock{}
	handler := NewNotificationHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/notifications?is_read=false&page=3", nil, customerClaims)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastQuery.IsRead)
	assert.False(t, *mockSvc.lastQuery.IsRead)
	assert.Equal(t, 3, mockSvc.lastQuery.Page)
	assert.Equal(t, 20, mockSvc.lastQuery.PageSize)

	c, w = newTestContext(http.MethodGet, "/notifications?is_read=maybe", nil, customerClaims)
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	mockSvc := &inboxServiceMock{}
	handler := NewNotificationHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/notifications/read", []byte(`{"ids":["n-1","n-2"]}`), customerClaims)
	handler.MarkRead(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"n-1", "n-2"}, mockSvc.lastMark.IDs)
	assert.EqualValues(t, 2, decodeEnvelope(t, w)["data"].(map[string]interface{})["updated"])
}
