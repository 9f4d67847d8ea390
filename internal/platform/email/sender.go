package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotConfigured is returned when no SMTP host has been configured.
var ErrNotConfigured = errors.New("smtp is not configured")

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers a fully rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config is what the mailer needs at send time. It is re-read for every
// message so settings changes apply immediately.
type Config struct {
	SiteName    string
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	UseTLS      bool
}

// ConfigSource supplies the current Config.
type ConfigSource interface {
	EmailConfig(ctx context.Context) (Config, error)
}

// Mailer renders templates and hands the result to a Sender.
type Mailer struct {
	engine *TemplateEngine
	sender Sender
	config ConfigSource
}

func NewMailer(engine *TemplateEngine, sender Sender, config ConfigSource) *Mailer {
	return &Mailer{engine: engine, sender: sender, config: config}
}

// SendTemplate renders templateID with data plus the site name and sends it
// to the recipients.
func (m *Mailer) SendTemplate(ctx context.Context, to []string, templateID string, data map[string]string, attachments ...Attachment) error {
	if len(to) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	cfg, err := m.config.EmailConfig(ctx)
	if err != nil {
		return fmt.Errorf("load email config: %w", err)
	}

	merged := make(map[string]string, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["site_name"] = cfg.SiteName

	subject, body, err := m.engine.Render(templateID, merged)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{To: to, Subject: subject, Body: body, Attachments: attachments})
}

// MockSender records messages instead of sending them.
type MockSender struct {
	mu         sync.Mutex
	messages   []Message
	ShouldFail bool
}

func (m *MockSender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if m.ShouldFail {
		return errors.New("mock smtp failure")
	}
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MockSender) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// StaticConfig is a ConfigSource returning a fixed Config.
type StaticConfig Config

func (s StaticConfig) EmailConfig(context.Context) (Config, error) {
	return Config(s), nil
}
