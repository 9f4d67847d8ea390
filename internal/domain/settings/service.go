package settings

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/email"
	"github.com/carelink/carelink/internal/platform/secrets"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var validThemes = map[string]bool{
	"light": true, "dark": true, "system": true,
}

// TemplateMailer sends a rendered template.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, to []string, templateID string, data map[string]string, attachments ...email.Attachment) error
}

type Service struct {
	repo   Repository
	cipher *secrets.Cipher
	logger zerolog.Logger
	mailer TemplateMailer

	mu       sync.RWMutex
	cached   *SystemSettings
	cachedAt time.Time
	ttl      time.Duration
}

func NewService(repo Repository, cipher *secrets.Cipher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cipher: cipher, logger: logger, ttl: 30 * time.Second}
}

// SetMailer wires the mailer used by SendTestEmail. The mailer itself reads
// SMTP settings from this service, so it is attached after construction.
func (s *Service) SetMailer(m TemplateMailer) {
	s.mailer = m
}

// load returns the stored settings with the password still sealed, or the
// defaults when nothing has been saved.
func (s *Service) load(ctx context.Context) (*SystemSettings, error) {
	s.mu.RLock()
	if s.cached != nil && time.Since(s.cachedAt) < s.ttl {
		cp := *s.cached
		s.mu.RUnlock()
		return &cp, nil
	}
	s.mu.RUnlock()

	st, err := s.repo.Get(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		st, err = Defaults(), nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = st
	s.cachedAt = time.Now()
	s.mu.Unlock()

	cp := *st
	return &cp, nil
}

func (s *Service) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func redact(st *SystemSettings) *SystemSettings {
	st.SMTPPasswordSet = st.SMTPPassword != ""
	st.SMTPPassword = ""
	return st
}

// Get returns the current settings without the SMTP password.
func (s *Service) Get(ctx context.Context) (*SystemSettings, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return redact(st), nil
}

// Update applies u. Only administrators may change settings.
func (s *Service) Update(ctx context.Context, u *Update) (*SystemSettings, error) {
	if !auth.IsAdmin(ctx) {
		return nil, apperr.ErrForbidden
	}
	current, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	sealed := current.SMTPPassword
	next := *current
	u.apply(&next)
	if u.SMTPPassword != nil {
		sealed, err = s.cipher.Seal(*u.SMTPPassword)
		if err != nil {
			return nil, err
		}
	}
	next.SMTPPassword = sealed
	next.SiteName = strings.TrimSpace(next.SiteName)

	if err := validate(&next); err != nil {
		return nil, err
	}
	if caller := auth.UserUUIDFromContext(ctx); caller != uuid.Nil {
		next.UpdatedBy = &caller
	}

	if err := s.repo.Save(ctx, &next); err != nil {
		return nil, err
	}
	s.invalidate()

	s.logger.Info().
		Str("updated_by", auth.UserIDFromContext(ctx)).
		Bool("smtp_password_changed", u.SMTPPassword != nil).
		Msg("system settings updated")
	return redact(&next), nil
}

func validate(st *SystemSettings) error {
	if st.SiteName == "" {
		return apperr.Validation("site_name is required")
	}
	if st.SMTPPort < 1 || st.SMTPPort > 65535 {
		return apperr.Validation("smtp_port must be between 1 and 65535")
	}
	if !colorPattern.MatchString(st.PrimaryColor) {
		return apperr.Validation("primary_color must be #RRGGBB")
	}
	if !colorPattern.MatchString(st.SecondaryColor) {
		return apperr.Validation("secondary_color must be #RRGGBB")
	}
	if !validThemes[st.Theme] {
		return apperr.Validation("theme must be light, dark or system")
	}
	if st.SessionTimeoutMinutes < 5 || st.SessionTimeoutMinutes > 1440 {
		return apperr.Validation("session_timeout_minutes must be between 5 and 1440")
	}
	if st.PasswordMinLength < 8 || st.PasswordMinLength > 128 {
		return apperr.Validation("password_min_length must be between 8 and 128")
	}
	if st.MaxLoginAttempts < 1 || st.MaxLoginAttempts > 20 {
		return apperr.Validation("max_login_attempts must be between 1 and 20")
	}
	if st.SMTPFromAddress != "" {
		if _, err := mail.ParseAddress(st.SMTPFromAddress); err != nil {
			return apperr.Validation("invalid smtp_from_address")
		}
	}
	if st.SupportEmail != nil && *st.SupportEmail != "" {
		if _, err := mail.ParseAddress(*st.SupportEmail); err != nil {
			return apperr.Validation("invalid support_email")
		}
	}
	return nil
}

// EmailConfig implements email.ConfigSource.
func (s *Service) EmailConfig(ctx context.Context) (email.Config, error) {
	st, err := s.load(ctx)
	if err != nil {
		return email.Config{}, err
	}
	password, err := s.cipher.Open(st.SMTPPassword)
	if err != nil {
		return email.Config{}, err
	}
	return email.Config{
		SiteName:    st.SiteName,
		Host:        st.SMTPHost,
		Port:        st.SMTPPort,
		Username:    st.SMTPUsername,
		Password:    password,
		FromAddress: st.SMTPFromAddress,
		FromName:    st.SMTPFromName,
		UseTLS:      st.SMTPUseTLS,
	}, nil
}

// SessionTimeout is the maximum token age. Lookup failures fall back to
// the default timeout.
func (s *Service) SessionTimeout(ctx context.Context) time.Duration {
	st, err := s.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load session timeout, using default")
		st = Defaults()
	}
	return time.Duration(st.SessionTimeoutMinutes) * time.Minute
}

// SiteName is the configured brand name, or the default on lookup failure.
func (s *Service) SiteName(ctx context.Context) string {
	st, err := s.load(ctx)
	if err != nil || st.SiteName == "" {
		return Defaults().SiteName
	}
	return st.SiteName
}

// SendTestEmail sends the test template to `to` through the current SMTP
// configuration.
func (s *Service) SendTestEmail(ctx context.Context, to string) error {
	if !auth.IsAdmin(ctx) {
		return apperr.ErrForbidden
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return apperr.Validation("invalid recipient: %s", to)
	}
	if s.mailer == nil {
		return errors.New("mailer is not configured")
	}
	err := s.mailer.SendTemplate(ctx, []string{to}, email.TemplateTest, map[string]string{
		"sent_at": time.Now().UTC().Format(time.RFC1123),
	})
	if errors.Is(err, email.ErrNotConfigured) {
		return apperr.Validation("smtp host and from address must be configured first")
	}
	return err
}
