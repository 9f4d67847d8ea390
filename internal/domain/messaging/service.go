package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/email"
	"github.com/carelink/carelink/internal/platform/media"
	"github.com/carelink/carelink/internal/platform/realtime"
)

type Directory interface {
	Contact(ctx context.Context, id uuid.UUID) (*directory.Contact, error)
}

type Notifier interface {
	Notify(ctx context.Context, req notification.Request) (*notification.Notification, error)
}

type Service struct {
	conversations ConversationRepository
	messages      MessageRepository
	directory     Directory
	store         media.Store
	notifier      Notifier
	publisher     realtime.Publisher
	tx            db.TxRunner
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(
	conversations ConversationRepository,
	messages MessageRepository,
	dir Directory,
	store media.Store,
	notifier Notifier,
	publisher realtime.Publisher,
	tx db.TxRunner,
	logger zerolog.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		directory:     dir,
		store:         store,
		notifier:      notifier,
		publisher:     publisher,
		tx:            tx,
		logger:        logger,
		now:           time.Now,
	}
}

// GetOrCreateConversation opens the caller's thread with otherID. At least
// one of the two must be a doctor.
func (s *Service) GetOrCreateConversation(ctx context.Context, otherID uuid.UUID) (*Conversation, error) {
	self := auth.UserUUIDFromContext(ctx)
	if self == uuid.Nil {
		return nil, apperr.ErrForbidden
	}
	if otherID == uuid.Nil {
		return nil, apperr.Validation("participant_id is required")
	}
	if otherID == self {
		return nil, apperr.Validation("cannot start a conversation with yourself")
	}
	other, err := s.directory.Contact(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other.Role != auth.RoleDoctor && !auth.HasRole(ctx, auth.RoleDoctor) {
		return nil, fmt.Errorf("%w: patients can only message doctors", apperr.ErrForbidden)
	}
	a, b := orderedPair(self, otherID)
	return s.conversations.GetOrCreate(ctx, a, b)
}

// GetConversation returns a conversation the caller takes part in.
func (s *Service) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	c, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Includes(auth.UserUUIDFromContext(ctx)) && !auth.IsAdmin(ctx) {
		return nil, apperr.ErrForbidden
	}
	return c, nil
}

// participantConversation loads a conversation and requires the caller to
// be one of its two participants. Administrators get no exception.
func (s *Service) participantConversation(ctx context.Context, id uuid.UUID) (*Conversation, uuid.UUID, error) {
	c, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	self := auth.UserUUIDFromContext(ctx)
	if !c.Includes(self) {
		return nil, uuid.Nil, fmt.Errorf("%w: not a participant of this conversation", apperr.ErrForbidden)
	}
	return c, self, nil
}

// SendMessage posts to a conversation the caller takes part in. A message
// needs a body, an attachment, or both.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, in SendInput) (*Message, error) {
	body := strings.TrimSpace(in.Body)
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, apperr.Validation("body exceeds %d characters", MaxBodyLength)
	}
	if in.AttachmentID != nil && strings.TrimSpace(*in.AttachmentID) == "" {
		in.AttachmentID = nil
	}
	if body == "" && in.AttachmentID == nil {
		return nil, apperr.Validation("body or attachment_id is required")
	}

	c, sender, err := s.participantConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if in.AttachmentID != nil {
		if err := s.checkAttachment(ctx, *in.AttachmentID, sender); err != nil {
			return nil, err
		}
	}

	m := &Message{
		ConversationID: c.ID,
		SenderID:       sender,
		RecipientID:    c.Other(sender),
		Body:           body,
		AttachmentID:   in.AttachmentID,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.messages.Create(ctx, m); err != nil {
			return err
		}
		return s.conversations.Touch(ctx, c.ID, m.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	for _, uid := range []uuid.UUID{m.RecipientID, m.SenderID} {
		s.publish(ctx, realtime.NewEvent(realtime.EventMessage, realtime.UserTopic(uid), "Message", m.ID, m))
	}
	s.notifyRecipient(ctx, m)
	return m, nil
}

func (s *Service) checkAttachment(ctx context.Context, id string, sender uuid.UUID) error {
	meta, err := s.store.GetMetadata(ctx, id)
	if errors.Is(err, media.ErrObjectNotFound) {
		return apperr.Validation("attachment %s does not exist", id)
	}
	if err != nil {
		return fmt.Errorf("%w: attachment lookup: %v", apperr.ErrUnavailable, err)
	}
	if meta.Category != media.CategoryAttachment || meta.OwnerID != sender.String() {
		return apperr.Validation("attachment %s was not uploaded by the sender", id)
	}
	return nil
}

func (s *Service) notifyRecipient(ctx context.Context, m *Message) {
	senderName := "Someone"
	if c, err := s.directory.Contact(ctx, m.SenderID); err == nil {
		senderName = c.Name
	}
	preview := m.Body
	if utf8.RuneCountInString(preview) > 120 {
		preview = string([]rune(preview)[:120]) + "..."
	}
	if preview == "" {
		preview = "Sent an attachment."
	}
	_, err := s.notifier.Notify(ctx, notification.Request{
		UserID: m.RecipientID,
		Type:   notification.TypeNewMessage,
		Title:  "New message from " + senderName,
		Body:   preview,
		Link:   "/conversations/" + m.ConversationID.String(),
		Email: &notification.EmailRequest{
			TemplateID: email.TemplateNewMessage,
			Data:       map[string]string{"sender_name": senderName},
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", m.ID.String()).Msg("notify message recipient")
	}
}

// ListConversations lists a user's conversations with unread counts.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	if !auth.IsSelfOrAdmin(ctx, userID) {
		return nil, 0, apperr.ErrForbidden
	}
	return s.conversations.ListForUser(ctx, userID, limit, offset)
}

func (s *Service) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	if _, _, err := s.participantConversation(ctx, conversationID); err != nil {
		return nil, 0, err
	}
	return s.messages.ListByConversation(ctx, conversationID, limit, offset)
}

// MarkRead marks every message the caller received in the conversation as
// read and tells the other participant.
func (s *Service) MarkRead(ctx context.Context, conversationID uuid.UUID) (int, error) {
	c, self, err := s.participantConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	at := s.now()
	n, err := s.messages.MarkRead(ctx, c.ID, self, at)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		payload := map[string]interface{}{
			"conversation_id": c.ID,
			"reader_id":       self,
			"count":           n,
			"read_at":         at.UTC(),
		}
		s.publish(ctx, realtime.NewEvent(realtime.EventMessagesRead, realtime.UserTopic(c.Other(self)), "Conversation", c.ID, payload))
	}
	return n, nil
}

// UnreadCount is the number of unread messages addressed to the caller.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	self := auth.UserUUIDFromContext(ctx)
	if self == uuid.Nil {
		return 0, apperr.ErrForbidden
	}
	return s.messages.UnreadCount(ctx, self)
}

// UploadAttachment stores a file for a later message in the conversation.
func (s *Service) UploadAttachment(ctx context.Context, conversationID uuid.UUID, fileName, contentType string, content io.Reader) (*media.Metadata, error) {
	_, self, err := s.participantConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	meta := media.Metadata{
		FileName:    fileName,
		ContentType: contentType,
		Category:    media.CategoryAttachment,
		OwnerID:     self.String(),
	}
	if err := media.Validate(meta); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	stored, err := s.store.Upload(ctx, meta, content)
	if errors.Is(err, media.ErrFileTooLarge) {
		return nil, apperr.Validation("%v", err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: upload attachment: %v", apperr.ErrUnavailable, err)
	}
	return stored, nil
}

// Attachment returns the media id of a message attachment the caller may
// read.
func (s *Service) Attachment(ctx context.Context, messageID uuid.UUID) (string, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	self := auth.UserUUIDFromContext(ctx)
	if m.SenderID != self && m.RecipientID != self {
		return "", apperr.ErrForbidden
	}
	if m.AttachmentID == nil {
		return "", apperr.NotFound("attachment")
	}
	return *m.AttachmentID, nil
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("topic", ev.Topic).Str("type", ev.Type).Msg("publish message event")
	}
}
