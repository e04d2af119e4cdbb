package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

// EnqueueOutbox writes in a savepoint so a failure leaves the caller's
// transaction usable.
func (t *Tx) EnqueueOutbox(ctx context.Context, msg notification.Message) error {
	payload, err := json.Marshal(msg.Intent)
	if err != nil {
		return fmt.Errorf("postgres: marshal outbox payload: %w", err)
	}
	status := msg.Status
	if status == "" {
		status = notification.OutboxPending
	}

	const insertSQL = `
INSERT INTO outbox (id, topic, payload, status, created_at)
VALUES ($1, $2, $3, $4, $5)`

	err = t.savepoint(ctx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, insertSQL, msg.ID, msg.Topic, payload, status, msg.CreatedAt)
		return err
	})
	if err != nil {
		return translate(err, "enqueue outbox")
	}
	return nil
}

// ClaimOutbox locks up to limit pending rows, skipping rows another relay holds.
func (t *Tx) ClaimOutbox(ctx context.Context, limit int) ([]notification.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := t.tx.Query(ctx, `
SELECT id, topic, payload, status, attempts, last_error, created_at, delivered_at
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
FOR UPDATE SKIP LOCKED
LIMIT $1`, limit)
	if err != nil {
		return nil, translate(err, "claim outbox")
	}
	defer rows.Close()

	var out []notification.Message
	for rows.Next() {
		var (
			msg     notification.Message
			payload []byte
		)
		if err := rows.Scan(&msg.ID, &msg.Topic, &payload, &msg.Status, &msg.Attempts, &msg.LastError, &msg.CreatedAt, &msg.DeliveredAt); err != nil {
			return nil, translate(err, "scan outbox")
		}
		// Undecodable payloads are surfaced to the relay with an empty intent
		// so they fail validation and are parked instead of blocking the queue.
		_ = json.Unmarshal(payload, &msg.Intent)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "claim outbox")
	}
	return out, nil
}

func (t *Tx) MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE outbox SET status = 'delivered', attempts = attempts + 1, delivered_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate(err, "mark outbox delivered")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *Tx) MarkOutboxFailed(ctx context.Context, id, lastErr string, dead bool) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE outbox
SET attempts = attempts + 1,
    last_error = $2,
    status = CASE WHEN $3 THEN 'dead' ELSE status END
WHERE id = $1`, id, lastErr, dead)
	if err != nil {
		return translate(err, "mark outbox failed")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const notificationColumns = `id, user_id, type, title, message, COALESCE(contract_id, ''), data, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (notification.Notification, error) {
	var (
		n    notification.Notification
		data []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ContractID, &data, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
		return notification.Notification{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return notification.Notification{}, fmt.Errorf("decode notification data: %w", err)
		}
	}
	return n, nil
}

func (t *Tx) InsertNotification(ctx context.Context, n notification.Notification) error {
	var data []byte
	if len(n.Data) > 0 {
		var err error
		if data, err = json.Marshal(n.Data); err != nil {
			return fmt.Errorf("postgres: marshal notification data: %w", err)
		}
	}
	const insertSQL = `
INSERT INTO notifications (id, user_id, type, title, message, contract_id, data, is_read, read_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, insertSQL,
			n.ID, n.UserID, n.Type, n.Title, n.Message, nullable(n.ContractID), data, n.IsRead, n.ReadAt, n.CreatedAt)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return auth.ErrUserNotFound
	}
	if err != nil {
		return translate(err, "insert notification")
	}
	return nil
}

func (t *Tx) ListNotifications(ctx context.Context, filter store.NotificationFilter) ([]notification.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.tx.Query(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE ($1::text = '' OR user_id = $1::text)
  AND (NOT $2 OR is_read = FALSE)
ORDER BY created_at DESC, id
LIMIT $3`, filter.UserID, filter.UnreadOnly, limit)
	if err != nil {
		return nil, translate(err, "list notifications")
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, translate(err, "scan notification")
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list notifications")
	}
	return out, nil
}

func (t *Tx) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&n); err != nil {
		return 0, translate(err, "count unread")
	}
	return n, nil
}

func (t *Tx) MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE notifications
SET is_read = TRUE, read_at = COALESCE(read_at, $3)
WHERE id = $1 AND user_id = $2`, id, userID, at)
	if err != nil {
		return translate(err, "mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *Tx) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND is_read = FALSE`, userID, at)
	if err != nil {
		return 0, translate(err, "mark all notifications read")
	}
	return int(tag.RowsAffected()), nil
}

func (t *Tx) DeleteNotification(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete notification")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *Tx) ReserveIdempotencyKey(ctx context.Context, scope, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("postgres: empty idempotency key")
	}
	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, `INSERT INTO idempotency (scope, key) VALUES ($1, $2)`, scope, key)
		return err
	})
	if err == nil {
		return "", nil
	}
	if err = translate(err, "reserve idempotency key"); !errors.Is(err, store.ErrDuplicate) {
		return "", err
	}

	var resource string
	if err := t.tx.QueryRow(ctx, `SELECT resource_id FROM idempotency WHERE scope = $1 AND key = $2`, scope, key).Scan(&resource); err != nil {
		return "", translate(err, "read idempotency key")
	}
	return resource, store.ErrDuplicate
}

func (t *Tx) CompleteIdempotencyKey(ctx context.Context, scope, key, resourceID string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE idempotency SET resource_id = $3 WHERE scope = $1 AND key = $2`, scope, key, resourceID)
	if err != nil {
		return translate(err, "complete idempotency key")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
