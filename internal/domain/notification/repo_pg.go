package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/db"
)

// =========== Notification Repository ===========

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewNotificationRepoPG(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepoPG{pool: pool}
}

const notificationCols = `id, user_id, type, title, body, link, read_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Link, &n.ReadAt, &n.CreatedAt); err != nil {
		return nil, db.MapError(err, "notification")
	}
	return &n, nil
}

func (r *notificationRepoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO notification (id, user_id, type, title, body, link)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Link,
	).Scan(&n.CreatedAt)
	return db.MapError(err, "notification")
}

func (r *notificationRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	clause := ` WHERE user_id = $1`
	if unreadOnly {
		clause += ` AND read_at IS NULL`
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM notification`+clause, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+notificationCols+` FROM notification`+clause+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (r *notificationRepoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE notification SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification")
	}
	return nil
}

func (r *notificationRepoPG) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE notification SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *notificationRepoPG) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&n)
	return n, err
}

// =========== Device Token Repository ===========

type deviceTokenRepoPG struct{ pool *pgxpool.Pool }

func NewDeviceTokenRepoPG(pool *pgxpool.Pool) DeviceTokenRepository {
	return &deviceTokenRepoPG{pool: pool}
}

func (r *deviceTokenRepoPG) Upsert(ctx context.Context, t *DeviceToken) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO device_token (id, user_id, token, platform)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform, last_seen_at = NOW()
		RETURNING id, created_at, last_seen_at`,
		uuid.New(), t.UserID, t.Token, t.Platform,
	).Scan(&t.ID, &t.CreatedAt, &t.LastSeenAt)
	return db.MapError(err, "device token")
}

func (r *deviceTokenRepoPG) Delete(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM device_token WHERE user_id = $1 AND token = $2`, userID, token)
	return err
}

func (r *deviceTokenRepoPG) DeleteTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM device_token WHERE token = ANY($1)`, tokens)
	return err
}

func (r *deviceTokenRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*DeviceToken, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, user_id, token, platform, created_at, last_seen_at
		FROM device_token WHERE user_id = $1 ORDER BY last_seen_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DeviceToken
	for rows.Next() {
		var t DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform, &t.CreatedAt, &t.LastSeenAt); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	return items, rows.Err()
}
