package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newProtectedRouter(validator TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/jobs", JWT(validator), RequireRoles(roles...), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})
	return r
}

func TestJWTAndRBAC(t *testing.T) {
	validator := stubValidator{
		"worker-token":   {UserID: "worker-1", Role: models.RoleWorker},
		"customer-token": {UserID: "cust-1", Role: models.RoleCustomer},
	}
	router := newProtectedRouter(validator, models.RoleWorker, models.RoleAdmin)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic worker-token", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer customer-token", http.StatusForbidden},
		{"allowed", "bearer worker-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer worker-token")
	router.ServeHTTP(w, req)
	assert.Equal(t, "worker-1", w.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/categories", OptionalJWT(stubValidator{"t": {UserID: "u-1", Role: models.RoleAdmin}}), func(c *gin.Context) {
		if claims := Claims(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	for header, want := range map[string]string{"": "anonymous", "Bearer bad": "anonymous", "Bearer t": "u-1"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/categories", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, w.Body.String())
	}
}

type observation struct {
	method, path string
	status       int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{method, path, status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/requests/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/requests/abc", "/requests/def", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, observer.seen, 3)
	assert.Equal(t, observation{http.MethodGet, "/requests/:id", http.StatusNoContent}, observer.seen[0])
	assert.Equal(t, "/requests/:id", observer.seen[1].path)
	assert.Equal(t, observation{http.MethodGet, "unmatched", http.StatusNotFound}, observer.seen[2])
}
