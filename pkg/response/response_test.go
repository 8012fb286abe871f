package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/middleware/requestid"
)

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestListCarriesPaginationAndRequestID(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		List(c, []string{"a"}, &models.Pagination{Page: 2, PageSize: 1, TotalCount: 5})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "req-abc", body["request_id"])
	pagination := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 5, pagination["total_count"])
}

func TestAbortStopsChain(t *testing.T) {
	reached := false
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) { Abort(c, appErrors.ErrForbidden) }, func(c *gin.Context) { reached = true })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, reached)
}

func TestErrorUsesAppErrorStatus(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrConflict, "request already accepted"))
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "request already accepted", errBody["message"])
	assert.Nil(t, body["data"])
}
