package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

// Notifications accesses the notifications collection and hands every new
// record to the realtime publisher.
type Notifications struct{ *base }

const notificationColumns = `id, recipient_id, title, message, type, read, created_at`

func scanNotification(sc scanner) (models.Notification, error) {
	var n models.Notification
	var typ string
	if err := sc.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &typ, &n.Read, &n.CreatedAt); err != nil {
		return n, err
	}
	n.Type = models.NotificationType(typ)
	n.CreatedAt = n.CreatedAt.UTC()
	return n, nil
}

// Create stores an unread notification for recipientID.
func (s *Notifications) Create(ctx context.Context, recipientID, title, message string, typ models.NotificationType) (models.Notification, error) {
	return s.insert(ctx, "store.Notifications.Create", "Failed to create notification",
		recipientID, title, message, typ)
}

// Broadcast stores a notification visible to every user.
func (s *Notifications) Broadcast(ctx context.Context, title, message string) (models.Notification, error) {
	return s.insert(ctx, "store.Notifications.Broadcast", "Failed to broadcast notification",
		models.BroadcastRecipient, title, message, models.NotifyBroadcast)
}

func (s *Notifications) insert(ctx context.Context, op, msg, recipientID, title, message string, typ models.NotificationType) (models.Notification, error) {
	n := models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Type:        typ,
		CreatedAt:   s.stamp(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.RecipientID, n.Title, n.Message, string(n.Type), n.CreatedAt,
	)
	if err != nil {
		return models.Notification{}, apperr.Wrap(op, msg, err)
	}

	// The row is committed; a failed publish only costs live delivery.
	if s.pub != nil {
		if err := s.pub.Publish(ctx, n); err != nil {
			s.log.Warn("notification publish failed", "id", n.ID, "recipient", n.RecipientID, "err", err)
		}
	}
	return n, nil
}

// Get point-reads one notification.
func (s *Notifications) Get(ctx context.Context, id string) (models.Notification, error) {
	const op = "store.Notifications.Get"
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		return models.Notification{}, apperr.Wrap(op, "Failed to fetch notifications", err)
	}
	return n, nil
}

// ListForUser returns the notifications addressed to userID plus every
// broadcast, newest first.
func (s *Notifications) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	const op = "store.Notifications.ListForUser"
	const msg = "Failed to fetch notifications"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE recipient_id IN (?, ?) ORDER BY created_at DESC`,
		userID, models.BroadcastRecipient)
	if err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperr.Wrap(op, msg, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	return out, nil
}

// UnreadCount counts the unread notifications visible to userID.
func (s *Notifications) UnreadCount(ctx context.Context, userID string) (int, error) {
	const op = "store.Notifications.UnreadCount"
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id IN (?, ?) AND read = 0`,
		userID, models.BroadcastRecipient).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(op, "Failed to fetch notifications", err)
	}
	return n, nil
}

// MarkRead flags a notification as read. Broadcasts share one flag.
func (s *Notifications) MarkRead(ctx context.Context, id string) error {
	const op = "store.Notifications.MarkRead"
	const msg = "Failed to update notification"
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(op, msg, err)
	}
	if n == 0 {
		return apperr.WrapKind(op, apperr.NotFound, msg, sql.ErrNoRows)
	}
	return nil
}
