package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/dto"
	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/jobs"
	"github.com/noah-isme/dispatch-api/pkg/notify"
)

const deliverJobType = "notification.deliver"

// NotificationStore is the persistent inbox.
type NotificationStore interface {
	Write(ctx context.Context, intents []models.NotificationIntent) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}

// DeliveryConfig sizes the background delivery pool.
type DeliveryConfig struct {
	Workers    int
	Retries    int
	BufferSize int
	RetryDelay time.Duration
}

// NotificationService owns the inbox and hands committed notifications to the delivery transport.
type NotificationService struct {
	store     NotificationStore
	publisher notify.Publisher
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
	stopOnce  sync.Once
}

// NewNotificationService wires the inbox store and a delivery queue around publisher.
func NewNotificationService(store NotificationStore, publisher notify.Publisher, metrics *MetricsService, logger *zap.Logger, cfg DeliveryConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	svc := &NotificationService{store: store, publisher: publisher, metrics: metrics, logger: logger}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains buffered deliveries and closes the publisher.
// Calls after the first are no-ops.
func (s *NotificationService) Stop() {
	s.stopOnce.Do(func() {
		s.queue.Stop()
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("close notification publisher", zap.Error(err))
		}
	})
}

// Dispatch hands committed intents to the transport. It never blocks and never fails the caller;
// anything that cannot be queued is logged and dropped since the inbox row already exists.
func (s *NotificationService) Dispatch(intents []models.NotificationIntent) {
	counts := make(map[models.NotificationEvent]int)
	for _, intent := range intents {
		counts[intent.Event]++
		msg := notify.Message{
			RecipientID: intent.RecipientID,
			Event:       string(intent.Event),
			Category:    string(intent.Category),
			Title:       intent.Title,
			Body:        intent.Body,
			Data:        intent.Data,
			PublishedAt: time.Now().UTC(),
		}
		if intent.ReferenceRequestID != nil {
			msg.ReferenceRequestID = *intent.ReferenceRequestID
		}
		job := jobs.Job{ID: uuid.NewString(), Type: deliverJobType, Payload: msg}
		if err := s.queue.TryEnqueue(job); err != nil {
			s.metrics.ObserveDelivery(false)
			s.logger.Warn("notification delivery not queued",
				zap.String("recipient_id", intent.RecipientID),
				zap.String("event", string(intent.Event)),
				zap.Error(err))
		}
	}
	for event, n := range counts {
		s.metrics.ObserveNotifications(event, n)
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(notify.Message)
	if !ok {
		s.logger.Error("unexpected delivery payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.metrics.ObserveDelivery(false)
		return fmt.Errorf("publish %s to %s: %w", msg.Event, msg.RecipientID, err)
	}
	s.metrics.ObserveDelivery(true)
	return nil
}

// Write persists intents outside of a lifecycle transaction and then dispatches them.
func (s *NotificationService) Write(ctx context.Context, intents []models.NotificationIntent) error {
	if len(intents) == 0 {
		return nil
	}
	if err := s.store.Write(ctx, intents); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notifications")
	}
	s.Dispatch(intents)
	return nil
}

// List returns the actor's inbox page.
func (s *NotificationService) List(ctx context.Context, actor models.Actor, query dto.NotificationListQuery) ([]models.Notification, *models.Pagination, error) {
	if actor.UserID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	page, size := normalisePage(query.Page, query.PageSize)
	items, total, err := s.store.List(ctx, models.NotificationFilter{
		RecipientID: actor.UserID,
		IsRead:      query.IsRead,
		Limit:       size,
		Offset:      (page - 1) * size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead marks the selected notifications, or all of them, as read for the actor.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, req dto.MarkNotificationsRequest) (int64, error) {
	if actor.UserID == "" {
		return 0, appErrors.ErrUnauthorized
	}
	now := time.Now().UTC()
	if req.All {
		n, err := s.store.MarkAllRead(ctx, actor.UserID, now)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
		}
		return n, nil
	}
	if len(req.IDs) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "ids are required unless all is set")
	}
	n, err := s.store.MarkRead(ctx, actor.UserID, req.IDs, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return n, nil
}

func normalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
