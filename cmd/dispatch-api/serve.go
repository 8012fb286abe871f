package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/noah-isme/dispatch-api/api/swagger"
	"github.com/noah-isme/dispatch-api/internal/database"
	"github.com/noah-isme/dispatch-api/internal/handler"
	"github.com/noah-isme/dispatch-api/internal/repository"
	"github.com/noah-isme/dispatch-api/internal/router"
	"github.com/noah-isme/dispatch-api/internal/service"
	"github.com/noah-isme/dispatch-api/pkg/cache"
	"github.com/noah-isme/dispatch-api/pkg/config"
	pgdb "github.com/noah-isme/dispatch-api/pkg/database"
	"github.com/noah-isme/dispatch-api/pkg/geocode"
	"github.com/noah-isme/dispatch-api/pkg/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateOnStart bool

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
}

// stores is the persistence backend selected by DISPATCH_STORE.
type stores struct {
	requests      service.RequestStore
	workers       service.WorkerStore
	declines      service.DeclineStore
	notifications service.NotificationStore
	categories    service.CategoryStore
	db            *sqlx.DB
}

func openStores(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*stores, error) {
	switch cfg.Dispatch.Store {
	case config.StoreMemory:
		logr.Warn("using in-memory store; data is lost on restart")
		mem := repository.NewMemoryStore(cfg.Dispatch.LockTimeout)
		return &stores{
			requests:      mem.Requests(),
			workers:       mem.Workers(),
			declines:      mem.Declines(),
			notifications: mem.Notifications(),
			categories:    mem.Categories(),
		}, nil
	case "", config.StorePostgres:
		db, err := pgdb.NewPostgres(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if migrateOnStart {
			if err := database.MigrateUp(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &stores{
			requests:      repository.NewServiceRequestRepository(db, cfg.Dispatch.LockTimeout),
			workers:       repository.NewWorkerRepository(db),
			declines:      repository.NewDeclineRepository(db),
			notifications: repository.NewNotificationRepository(db),
			categories:    repository.NewCategoryRepository(db),
			db:            db,
		}, nil
	default:
		return nil, fmt.Errorf("unknown DISPATCH_STORE %q", cfg.Dispatch.Store)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logr, err := bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logr)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheSvc *service.CacheService
	if rdb != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled)
	}

	publisher, err := notify.New(cfg.Notifications, rdb, logr)
	if err != nil {
		return err
	}
	notifications := service.NewNotificationService(st.notifications, publisher, metrics, logr, service.DeliveryConfig{
		Workers:    cfg.Notifications.Workers,
		Retries:    cfg.Notifications.Retries,
		RetryDelay: time.Second,
	})
	// Delivery keeps running until Shutdown has drained in-flight requests.
	notifications.Start(context.WithoutCancel(ctx))
	defer notifications.Stop()

	categories := service.NewCategoryService(st.categories, cacheSvc, cfg.Cache.DefaultTTL, logr)

	deps := service.DispatchDeps{
		Requests:      st.requests,
		Workers:       st.workers,
		Declines:      st.declines,
		Notifications: notifications,
		Categories:    categories,
		Validator:     validate,
		Metrics:       metrics,
		Logger:        logr,
	}
	if cfg.Geocoder.Enabled {
		client := geocode.NewClient(geocode.Options{
			BaseURL:   cfg.Geocoder.BaseURL,
			Timeout:   cfg.Geocoder.Timeout,
			UserAgent: cfg.Geocoder.UserAgent,
			Retries:   1,
			Logger:    logr,
		})
		deps.Geocoder = service.NewGeocodeService(client, cacheSvc, cfg.Geocoder.CacheTTL, logr)
	}
	dispatch := service.NewDispatchService(deps)
	workers := service.NewWorkerService(st.workers, categories, validate, logr)

	requestHandler := handler.NewRequestHandler(dispatch, nil)
	if cfg.Exports.Enabled {
		requestHandler = handler.NewRequestHandler(dispatch, service.NewExportService(dispatch, logr))
	}

	engine := router.New(router.Dependencies{
		Config: cfg,
		Logger: logr,
		Auth: service.NewAuthService(logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			Issuer:            cfg.JWT.Issuer,
			Audience:          cfg.JWT.Audience,
		}),
		Observer: metrics,
	}, router.Handlers{
		Requests:      requestHandler,
		Jobs:          handler.NewJobHandler(dispatch),
		Customers:     handler.NewCustomerHandler(dispatch, workers),
		Workers:       handler.NewWorkerHandler(workers),
		Notifications: handler.NewNotificationHandler(notifications),
		Categories:    handler.NewCategoryHandler(categories),
		Metrics:       handler.NewMetricsHandler(metrics.Handler(), readinessChecks(st.db, rdb)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.Dispatch.Store),
			zap.String("notify_transport", cfg.Notifications.Transport))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	notifications.Stop()
	return nil
}

func readinessChecks(db *sqlx.DB, rdb *redis.Client) map[string]handler.ReadinessCheck {
	checks := make(map[string]handler.ReadinessCheck)
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
