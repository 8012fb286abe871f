package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/dispatch-api/internal/models"
)

const notificationColumns = `id, recipient_id, category, event, title, body, data, reference_request_id, is_read, read_at, created_at`

// insertBatchSize keeps multi-row inserts well below the 65535 bind parameter limit.
const insertBatchSize = 500

// NotificationRepository persists inbox notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Write stores intents outside of a lifecycle transition, e.g. when workers are re-notified.
func (r *NotificationRepository) Write(ctx context.Context, intents []models.NotificationIntent) (err error) {
	if len(intents) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write notifications: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = writeNotifications(ctx, tx, intents, time.Now().UTC()); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit write notifications: %w", err)
	}
	return nil
}

// List returns a recipient's notifications newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	conditions := []string{"recipient_id = $1"}
	args := []interface{}{filter.RecipientID}
	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		conditions = append(conditions, fmt.Sprintf("is_read = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id ASC LIMIT %d OFFSET %d",
		notificationColumns, where, limit, offset)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead marks the given notifications of a recipient as read. Ids owned by others are ignored.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE notifications SET is_read = TRUE, read_at = $1
	WHERE recipient_id = $2 AND is_read = FALSE AND id = ANY($3)`
	res, err := r.db.ExecContext(ctx, query, at, recipientID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// MarkAllRead marks every unread notification of a recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	const query = `UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE recipient_id = $2 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, at, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// writeNotifications persists intents inside an open transaction. Skip-policy intents go out as
// bulk inserts that ignore duplicates; update-policy intents are upserted one by one and come
// back unread.
func writeNotifications(ctx context.Context, exec sqlx.ExecerContext, intents []models.NotificationIntent, at time.Time) error {
	if len(intents) == 0 {
		return nil
	}
	skip := make([]models.NotificationIntent, 0, len(intents))
	for _, intent := range intents {
		if intent.OnConflict == models.ConflictUpdate {
			if err := upsertNotification(ctx, exec, intent, at); err != nil {
				return err
			}
			continue
		}
		skip = append(skip, intent)
	}
	for start := 0; start < len(skip); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(skip) {
			end = len(skip)
		}
		if err := insertNotificationBatch(ctx, exec, skip[start:end], at); err != nil {
			return err
		}
	}
	return nil
}

func notificationArgs(intent models.NotificationIntent, at time.Time) []interface{} {
	data := intent.Data
	if data == nil {
		data = models.JSONMap{}
	}
	return []interface{}{
		uuid.NewString(), intent.RecipientID, intent.Category, intent.Event,
		intent.Title, intent.Body, data, intent.ReferenceRequestID, at,
	}
}

const notificationInsertColumns = `(id, recipient_id, category, event, title, body, data, reference_request_id, created_at)`

func insertNotificationBatch(ctx context.Context, exec sqlx.ExecerContext, batch []models.NotificationIntent, at time.Time) error {
	const perRow = 9
	values := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*perRow)
	for i, intent := range batch {
		placeholders := make([]string, perRow)
		for j := 0; j < perRow; j++ {
			placeholders[j] = fmt.Sprintf("$%d", i*perRow+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, notificationArgs(intent, at)...)
	}
	query := `INSERT INTO notifications ` + notificationInsertColumns + ` VALUES ` + strings.Join(values, ", ") +
		` ON CONFLICT (recipient_id, event, reference_request_id) DO NOTHING`
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

func upsertNotification(ctx context.Context, exec sqlx.ExecerContext, intent models.NotificationIntent, at time.Time) error {
	const query = `INSERT INTO notifications ` + notificationInsertColumns + `
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (recipient_id, event, reference_request_id) DO UPDATE
	SET category = EXCLUDED.category, title = EXCLUDED.title, body = EXCLUDED.body, data = EXCLUDED.data,
	    is_read = FALSE, read_at = NULL, created_at = EXCLUDED.created_at`
	if _, err := exec.ExecContext(ctx, query, notificationArgs(intent, at)...); err != nil {
		return fmt.Errorf("upsert notification %s: %w", intent.Event, err)
	}
	return nil
}
