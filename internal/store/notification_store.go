package store

import (
	"context"

	"github.com/soyeahso/chatdesk/internal/domain"
)

// NotificationStore persists per-user chat notifications.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a notification store using the given database.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create inserts a notification.
func (s *NotificationStore) Create(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	if n.UserID == "" {
		return nil, domain.Validationf("notification recipient is required")
	}
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	created := s.db.now().UTC()
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO chat_notifications (user_id, session_id, notification_type, title, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.UserID, n.SessionID, n.Type, n.Title, n.Body, formatTime(created))
	if err != nil {
		return nil, domain.Storage("create notification", err)
	}
	n.ID, _ = res.LastInsertId()
	n.CreatedAt = created
	n.Read = false
	return &n, nil
}

// ListForUser returns a user's notifications, newest first.
func (s *NotificationStore) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]*domain.Notification, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	query := `SELECT id, user_id, session_id, notification_type, title, message, is_read, created_at
		FROM chat_notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.sql.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, domain.Storage("list notifications", err)
	}
	defer rows.Close()

	out := []*domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.SessionID, &n.Type, &n.Title, &n.Body, &n.Read, &createdAt); err != nil {
			return nil, domain.Storage("scan notification", err)
		}
		n.CreatedAt = parseTime(createdAt)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list notifications", err)
	}
	return out, nil
}

// MarkRead flags one of the user's notifications read. Notifications
// belonging to someone else are reported as not found.
func (s *NotificationStore) MarkRead(ctx context.Context, id int64, userID string) error {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return domain.Storage("mark notification read", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("notification %d not found", id)
	}
	return nil
}

// CountBySession counts notifications attached to a session.
func (s *NotificationStore) CountBySession(ctx context.Context, sessionID int64) (int, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	var n int
	if err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_notifications WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, domain.Storage("count notifications", err)
	}
	return n, nil
}
