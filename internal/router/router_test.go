package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/handler"
	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/internal/repository"
	"github.com/noah-isme/dispatch-api/internal/service"
	"github.com/noah-isme/dispatch-api/pkg/config"
)

const testSecret = "router-secret"

type testAPI struct {
	engine *gin.Engine
	store  *repository.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore(time.Second)
	store.PutUser(models.User{ID: "cust-1", Email: "c@example.com", Role: models.RoleCustomer, Active: true})
	for _, id := range []string{"worker-1", "worker-2"} {
		store.PutUser(models.User{ID: id, Email: id + "@example.com", Role: models.RoleWorker, Active: true})
		store.PutWorker(models.WorkerProfile{
			UserID:           id,
			Available:        true,
			ServiceRadiusKm:  10,
			CurrentLatitude:  decimal.NewNullDecimal(decimal.RequireFromString("51.5074")),
			CurrentLongitude: decimal.NewNullDecimal(decimal.RequireFromString("-0.1278")),
		})
	}

	logger := zap.NewNop()
	metrics := service.NewMetricsService()
	categories := service.NewCategoryService(store.Categories(), nil, time.Minute, logger)
	notifications := service.NewNotificationService(store.Notifications(), nil, metrics, logger, service.DeliveryConfig{})
	dispatch := service.NewDispatchService(service.DispatchDeps{
		Requests:      store.Requests(),
		Workers:       store.Workers(),
		Declines:      store.Declines(),
		Notifications: notifications,
		Categories:    categories,
		Metrics:       metrics,
		Logger:        logger,
	})
	workers := service.NewWorkerService(store.Workers(), categories, nil, logger)

	cfg := &config.Config{Env: config.EnvDevelopment, APIPrefix: "/api/v1"}
	engine := New(Dependencies{
		Config:   cfg,
		Logger:   logger,
		Auth:     service.NewAuthService(logger, service.AuthConfig{AccessTokenSecret: testSecret}),
		Observer: metrics,
	}, Handlers{
		Requests:      handler.NewRequestHandler(dispatch, service.NewExportService(dispatch, logger)),
		Jobs:          handler.NewJobHandler(dispatch),
		Customers:     handler.NewCustomerHandler(dispatch, workers),
		Workers:       handler.NewWorkerHandler(workers),
		Notifications: handler.NewNotificationHandler(notifications),
		Categories:    handler.NewCategoryHandler(categories),
		Metrics:       handler.NewMetricsHandler(metrics.Handler(), nil),
	})
	return &testAPI{engine: engine, store: store}
}

func token(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: userID,
		Role:   role,
		Email:  userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var envelope map[string]interface{}
	if json.Valid(w.Body.Bytes()) {
		_ = json.Unmarshal(w.Body.Bytes(), &envelope)
	}
	return w, envelope
}

func TestRouterRequestLifecycle(t *testing.T) {
	api := newTestAPI(t)
	customer := token(t, "cust-1", models.RoleCustomer)
	worker1 := token(t, "worker-1", models.RoleWorker)
	worker2 := token(t, "worker-2", models.RoleWorker)

	w, body := api.do(t, http.MethodPost, "/api/v1/requests", customer, map[string]interface{}{
		"title":              "Leaking tap",
		"description":        "Bathroom sink",
		"priority":           "EMERGENCY",
		"location_latitude":  51.508,
		"location_longitude": -0.129,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := body["data"].(map[string]interface{})["id"].(string)

	w, body = api.do(t, http.MethodGet, "/api/v1/jobs/pending", worker1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, _ = api.do(t, http.MethodPost, "/api/v1/requests/"+id+"/accept", worker1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = api.do(t, http.MethodPost, "/api/v1/requests/"+id+"/accept", worker2, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/requests/"+id+"/complete", worker1, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/requests/"+id+"/start", worker1, map[string]string{"notes": "on site"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = api.do(t, http.MethodPost, "/api/v1/requests/"+id+"/complete", worker1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", body["data"].(map[string]interface{})["status"])

	w, body = api.do(t, http.MethodGet, "/api/v1/customer/requests/completed", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, body = api.do(t, http.MethodGet, "/api/v1/notifications", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)

	w, _ = api.do(t, http.MethodGet, "/api/v1/requests/"+id+"/export?format=csv", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
}

func TestRouterAuthAndRoles(t *testing.T) {
	api := newTestAPI(t)
	customer := token(t, "cust-1", models.RoleCustomer)

	w, _ := api.do(t, http.MethodGet, "/api/v1/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/requests", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/jobs/pending", customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/requests/whatever/renotify", customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/categories", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := api.do(t, http.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotNil(t, body["error"])

	w, _ = api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
