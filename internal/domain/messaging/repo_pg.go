package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

// =========== Conversation Repository ===========

type conversationRepoPG struct{ pool *pgxpool.Pool }

func NewConversationRepoPG(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepoPG{pool: pool}
}

const conversationCols = `c.id, c.participant_a, c.participant_b, c.last_message_at, c.created_at, c.updated_at`

func scanConversation(row pgx.Row, extra ...interface{}) (*Conversation, error) {
	var c Conversation
	dest := append([]interface{}{&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, db.MapError(err, "conversation")
	}
	return &c, nil
}

func (r *conversationRepoPG) GetOrCreate(ctx context.Context, a, b uuid.UUID) (*Conversation, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	return scanConversation(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO conversation AS c (id, participant_a, participant_b)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant_a, participant_b) DO UPDATE SET updated_at = c.updated_at
		RETURNING `+conversationCols,
		uuid.New(), a, b))
}

func (r *conversationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return scanConversation(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversation c WHERE c.id = $1`, id))
}

func (r *conversationRepoPG) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE conversation SET last_message_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "conversation")
	}
	return nil
}

func (r *conversationRepoPG) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation WHERE participant_a = $1 OR participant_b = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `
		SELECT `+conversationCols+`,
			(SELECT COUNT(*) FROM doctor_message m
			 WHERE m.conversation_id = c.id AND m.recipient_id = $1 AND m.read_at IS NULL)
		FROM conversation c
		WHERE c.participant_a = $1 OR c.participant_b = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Conversation
	for rows.Next() {
		var unread int
		c, err := scanConversation(rows, &unread)
		if err != nil {
			return nil, 0, err
		}
		c.UnreadCount = unread
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// =========== Message Repository ===========

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

const messageCols = `id, conversation_id, sender_id, recipient_id, body, attachment_id, read_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID, &m.Body,
		&m.AttachmentID, &m.ReadAt, &m.CreatedAt)
	if err != nil {
		return nil, db.MapError(err, "message")
	}
	return &m, nil
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor_message (id, conversation_id, sender_id, recipient_id, body, attachment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, m.Body, m.AttachmentID,
	).Scan(&m.CreatedAt)
	return db.MapError(err, "message")
}

func (r *messageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	return scanMessage(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+messageCols+` FROM doctor_message WHERE id = $1`, id))
}

func (r *messageRepoPG) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor_message WHERE conversation_id = $1`, conversationID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+messageCols+` FROM doctor_message
		WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE doctor_message SET read_at = $3
		WHERE conversation_id = $1 AND recipient_id = $2 AND read_at IS NULL`,
		conversationID, recipientID, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *messageRepoPG) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor_message WHERE recipient_id = $1 AND read_at IS NULL`, recipientID,
	).Scan(&n)
	return n, err
}
