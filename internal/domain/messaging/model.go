package messaging

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

const MaxBodyLength = 4000

// Conversation is the thread between two users. ParticipantA always sorts
// before ParticipantB so a pair maps to exactly one row.
type Conversation struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ParticipantA  uuid.UUID  `db:"participant_a" json:"participant_a"`
	ParticipantB  uuid.UUID  `db:"participant_b" json:"participant_b"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	// UnreadCount is filled in for the user listing their conversations.
	UnreadCount int `db:"-" json:"unread_count"`
}

func (c *Conversation) Includes(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message is one entry in a conversation.
type Message struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID  `db:"sender_id" json:"sender_id"`
	RecipientID    uuid.UUID  `db:"recipient_id" json:"recipient_id"`
	Body           string     `db:"body" json:"body"`
	AttachmentID   *string    `db:"attachment_id" json:"attachment_id,omitempty"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

type SendInput struct {
	Body         string  `json:"body"`
	AttachmentID *string `json:"attachment_id"`
}

// orderedPair returns the two ids in storage order.
func orderedPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(x[:], y[:]) > 0 {
		return y, x
	}
	return x, y
}
