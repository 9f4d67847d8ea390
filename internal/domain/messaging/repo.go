package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	// GetOrCreate returns the conversation for the ordered pair (a, b),
	// inserting it when absent.
	GetOrCreate(ctx context.Context, a, b uuid.UUID) (*Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListForUser returns the user's conversations, most recent activity
	// first, with UnreadCount set for that user.
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListByConversation returns messages newest first.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error)
	// MarkRead stamps every unread message addressed to recipientID in the
	// conversation and returns how many changed.
	MarkRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
}
