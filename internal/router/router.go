// Package router wires handlers onto the gin engine.
package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/handler"
	"github.com/noah-isme/dispatch-api/internal/middleware"
	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/pkg/config"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/dispatch-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/dispatch-api/pkg/middleware/requestid"
	"github.com/noah-isme/dispatch-api/pkg/response"
)

// Handlers groups every HTTP handler served by the API.
type Handlers struct {
	Requests      *handler.RequestHandler
	Jobs          *handler.JobHandler
	Customers     *handler.CustomerHandler
	Workers       *handler.WorkerHandler
	Notifications *handler.NotificationHandler
	Categories    *handler.CategoryHandler
	Metrics       *handler.MetricsHandler
}

// Dependencies carries the middleware collaborators.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Auth     middleware.TokenValidator
	Observer middleware.HTTPObserver
}

// New builds the gin engine with the full route table.
func New(deps Dependencies, h Handlers) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Observer))
	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	api := r.Group(prefix)
	api.GET("/categories", h.Categories.List)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Auth))

	requests := secured.Group("/requests")
	requests.POST("", middleware.RequireRoles(models.RoleCustomer), h.Requests.Create)
	requests.GET("", h.Requests.List)
	requests.GET("/:id", h.Requests.Get)
	requests.GET("/:id/activities", h.Requests.Activities)
	requests.POST("/:id/accept", middleware.RequireRoles(models.RoleWorker), h.Requests.Accept)
	requests.POST("/:id/start", middleware.RequireRoles(models.RoleWorker), h.Requests.Start)
	requests.POST("/:id/complete", middleware.RequireRoles(models.RoleWorker, models.RoleAdmin), h.Requests.Complete)
	requests.POST("/:id/cancel", h.Requests.Cancel)
	requests.POST("/:id/decline", middleware.RequireRoles(models.RoleWorker), h.Requests.Decline)
	requests.POST("/:id/location", middleware.RequireRoles(models.RoleWorker), h.Requests.Location)
	requests.GET("/:id/track", h.Requests.Track)
	requests.GET("/:id/export", h.Requests.Export)
	requests.POST("/:id/renotify", middleware.RequireRoles(models.RoleAdmin), h.Requests.Renotify)

	jobs := secured.Group("/jobs", middleware.RequireRoles(models.RoleWorker))
	jobs.GET("/pending", h.Jobs.Pending)
	jobs.GET("/nearby", h.Jobs.Nearby)
	jobs.GET("/active", h.Jobs.Active)
	jobs.GET("/completed", h.Jobs.Completed)
	jobs.GET("/declined", h.Jobs.Declined)

	secured.PATCH("/workers/availability", middleware.RequireRoles(models.RoleWorker), h.Workers.UpdateAvailability)

	customer := secured.Group("/customer", middleware.RequireRoles(models.RoleCustomer))
	customer.GET("/requests/active", h.Customers.ActiveRequests)
	customer.GET("/requests/pending", h.Customers.PendingRequests)
	customer.GET("/requests/completed", h.Customers.CompletedRequests)
	customer.GET("/workers/search", h.Customers.SearchWorkers)

	secured.GET("/notifications", h.Notifications.List)
	secured.POST("/notifications/read", h.Notifications.MarkRead)

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		response.Error(c, appErrors.New("METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed, "method not allowed"))
	})
	return r
}
