package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/wneessen/go-mail"
)

// SMTPSender delivers mail through the SMTP server named in the current
// settings. Port 465 uses implicit TLS; otherwise STARTTLS is required when
// UseTLS is set.
type SMTPSender struct {
	config  ConfigSource
	timeout time.Duration
}

func NewSMTPSender(config ConfigSource) *SMTPSender {
	return &SMTPSender{config: config, timeout: 30 * time.Second}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	cfg, err := s.config.EmailConfig(ctx)
	if err != nil {
		return fmt.Errorf("load smtp config: %w", err)
	}
	if cfg.Host == "" || cfg.FromAddress == "" {
		return ErrNotConfigured
	}

	m, err := newMessage(cfg, msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(cfg.Host, s.clientOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send via %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return nil
}

func (s *SMTPSender) clientOptions(cfg Config) []mail.Option {
	opts := []mail.Option{
		mail.WithTimeout(s.timeout),
		mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	switch {
	case cfg.Port == 465:
		opts = append(opts, mail.WithSSL())
	case cfg.UseTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return opts
}

// newMessage renders msg for delivery. Messages with attachments become
// multipart/mixed.
func newMessage(cfg Config, msg Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}
	m := mail.NewMsg()
	if err := m.FromFormat(cfg.FromName, cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.FromAddress, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := m.AttachReader(a.Name, bytes.NewReader(a.Data), mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return m, nil
}
