package messaging

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/realtime"
	"github.com/carelink/carelink/pkg/pagination"
)

type mockConversationRepo struct {
	items    map[uuid.UUID]*Conversation
	messages *mockMessageRepo
}

func (m *mockConversationRepo) GetOrCreate(_ context.Context, a, b uuid.UUID) (*Conversation, error) {
	for _, c := range m.items {
		if c.ParticipantA == a && c.ParticipantB == b {
			cp := *c
			return &cp, nil
		}
	}
	now := time.Now()
	c := &Conversation{ID: uuid.New(), ParticipantA: a, ParticipantB: b, CreatedAt: now, UpdatedAt: now}
	m.items[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *mockConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*Conversation, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("conversation")
	}
	cp := *c
	return &cp, nil
}

func (m *mockConversationRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	c, ok := m.items[id]
	if !ok {
		return apperr.NotFound("conversation")
	}
	c.LastMessageAt = &at
	return nil
}

func (m *mockConversationRepo) ListForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	var result []*Conversation
	for _, c := range m.items {
		if !c.Includes(userID) {
			continue
		}
		cp := *c
		for _, msg := range m.messages.items {
			if msg.ConversationID == c.ID && msg.RecipientID == userID && msg.ReadAt == nil {
				cp.UnreadCount++
			}
		}
		result = append(result, &cp)
	}
	activity := func(c *Conversation) time.Time {
		if c.LastMessageAt != nil {
			return *c.LastMessageAt
		}
		return c.CreatedAt
	}
	sort.Slice(result, func(i, j int) bool { return activity(result[i]).After(activity(result[j])) })
	return pagination.Window(result, limit, offset), len(result), nil
}

type mockMessageRepo struct {
	items map[uuid.UUID]*Message
	clock time.Time
}

func (m *mockMessageRepo) Create(_ context.Context, msg *Message) error {
	// Strictly increasing timestamps keep ordering deterministic.
	m.clock = m.clock.Add(time.Second)
	msg.ID = uuid.New()
	msg.CreatedAt = m.clock
	cp := *msg
	m.items[msg.ID] = &cp
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*Message, error) {
	msg, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("message")
	}
	cp := *msg
	return &cp, nil
}

func (m *mockMessageRepo) ListByConversation(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var result []*Message
	for _, msg := range m.items {
		if msg.ConversationID == conversationID {
			cp := *msg
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return pagination.Window(result, limit, offset), len(result), nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int, error) {
	n := 0
	for _, msg := range m.items {
		if msg.ConversationID == conversationID && msg.RecipientID == recipientID && msg.ReadAt == nil {
			t := at
			msg.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (m *mockMessageRepo) UnreadCount(_ context.Context, recipientID uuid.UUID) (int, error) {
	n := 0
	for _, msg := range m.items {
		if msg.RecipientID == recipientID && msg.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

type mockDirectory map[uuid.UUID]*directory.Contact

func (m mockDirectory) add(name, role string) uuid.UUID {
	id := uuid.New()
	m[id] = &directory.Contact{ID: id, Name: name, Email: strings.ToLower(strings.Fields(name)[0]) + "@example.com", Role: role}
	return id
}

func (m mockDirectory) Contact(_ context.Context, id uuid.UUID) (*directory.Contact, error) {
	c, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return c, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Request
}

func (n *recordingNotifier) Notify(_ context.Context, req notification.Request) (*notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	return &notification.Notification{ID: uuid.New(), UserID: req.UserID}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) topics(eventType string) []string {
	var out []string
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev.Topic)
		}
	}
	return out
}
