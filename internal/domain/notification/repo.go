package notification

import (
	"context"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	// MarkRead marks the notification read if it belongs to userID.
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}

type DeviceTokenRepository interface {
	// Upsert registers the token, moving it to userID if it was held by
	// another user.
	Upsert(ctx context.Context, t *DeviceToken) error
	Delete(ctx context.Context, userID uuid.UUID, token string) error
	DeleteTokens(ctx context.Context, tokens []string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*DeviceToken, error)
}
