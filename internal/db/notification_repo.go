package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"gardenwatch/internal/types"
)

// NotificationRepository provides data access for the notifications table. It
// is the dedup source of the alert engine and the counter source of the
// diagnostics report.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const insertNotificationSQL = `INSERT INTO notifications
	 (id, created_at, type, priority, title, message, is_read, plantation_id, user_id)
	 VALUES ($1, COALESCE($2, NOW()), $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`

func notificationArgs(n *types.Notification) []any {
	return []any{
		n.ID,
		nilIfZeroTime(n.CreatedAt),
		string(n.Type),
		string(n.Priority),
		n.Title,
		n.Message,
		n.Read,
		n.PlantationID,
		n.UserID,
	}
}

// Create inserts a new notification. The caller sets the prefixed ID.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	if _, err := r.db.Exec(ctx, insertNotificationSQL, notificationArgs(n)...); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// HasRecentNotification reports whether a notification of type t for the
// plantation was created at or after since. Served by
// idx_notifications_dedup (plantation_id, type, created_at).
func (r *NotificationRepository) HasRecentNotification(ctx context.Context, plantationID string, t types.NotificationType, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM notifications
			 WHERE plantation_id = $1 AND type = $2 AND created_at >= $3)`,
		plantationID, string(t), since,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check recent notifications", err)
	}
	return exists, nil
}

// HasUnreadNotification reports whether an unread notification of type t
// exists for the plantation.
func (r *NotificationRepository) HasUnreadNotification(ctx context.Context, plantationID string, t types.NotificationType) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM notifications
			 WHERE plantation_id = $1 AND type = $2 AND is_read = FALSE)`,
		plantationID, string(t),
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check unread notifications", err)
	}
	return exists, nil
}

// CountSince returns the number of notifications created at or after since.
func (r *NotificationRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE created_at >= $1`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count notifications", err)
	}
	return count, nil
}

// FindLastNotificationDate returns the creation time of the newest
// notification, or nil when the table is empty.
func (r *NotificationRepository) FindLastNotificationDate(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT created_at FROM notifications ORDER BY created_at DESC LIMIT 1`,
	).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find last notification", err)
	}
	return last, nil
}
