package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/email"
	"github.com/carelink/carelink/internal/platform/push"
	"github.com/carelink/carelink/internal/platform/realtime"
)

// ContactLookup resolves a user's display name and email address.
type ContactLookup interface {
	Contact(ctx context.Context, id uuid.UUID) (*directory.Contact, error)
}

// TemplateMailer sends a rendered email template.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, to []string, templateID string, data map[string]string, attachments ...email.Attachment) error
}

var validPlatforms = map[string]bool{
	"web": true, "android": true, "ios": true,
}

type Service struct {
	notifications NotificationRepository
	devices       DeviceTokenRepository
	contacts      ContactLookup
	publisher     realtime.Publisher
	pusher        push.Sender
	mailer        TemplateMailer
	logger        zerolog.Logger
	baseURL       string

	// async delivers side effects after Notify returns.
	async      bool
	background conc.WaitGroup
}

func NewService(
	notifications NotificationRepository,
	devices DeviceTokenRepository,
	contacts ContactLookup,
	publisher realtime.Publisher,
	pusher push.Sender,
	mailer TemplateMailer,
	logger zerolog.Logger,
) *Service {
	return &Service{
		notifications: notifications,
		devices:       devices,
		contacts:      contacts,
		publisher:     publisher,
		pusher:        pusher,
		mailer:        mailer,
		logger:        logger,
	}
}

// WithAsyncDelivery makes Notify return once the notification is stored,
// delivering push, realtime and email in the background. Close waits for
// pending deliveries.
func (s *Service) WithAsyncDelivery() *Service {
	s.async = true
	return s
}

// SetBaseURL sets the prefix used to turn relative links into absolute URLs
// in push and email payloads.
func (s *Service) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimRight(baseURL, "/")
}

// Close blocks until background deliveries finish or ctx is done.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify stores the notification and then delivers it over the realtime
// hub, FCM and optionally email. Only the store can fail the call.
func (s *Service) Notify(ctx context.Context, req Request) (*Notification, error) {
	if req.UserID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}
	if req.Type == "" || req.Title == "" {
		return nil, apperr.Validation("type and title are required")
	}

	n := &Notification{
		UserID: req.UserID,
		Type:   req.Type,
		Title:  req.Title,
		Body:   req.Body,
	}
	if req.Link != "" {
		n.Link = &req.Link
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}

	if s.async {
		detached := context.WithoutCancel(ctx)
		s.background.Go(func() { s.deliver(detached, n, req.Email) })
	} else {
		s.deliver(ctx, n, req.Email)
	}
	return n, nil
}

func (s *Service) absolute(link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return s.baseURL + link
}

func (s *Service) deliver(ctx context.Context, n *Notification, mail *EmailRequest) {
	log := s.logger.With().Str("notification_id", n.ID.String()).Str("user_id", n.UserID.String()).Logger()
	link := ""
	if n.Link != nil {
		link = s.absolute(*n.Link)
	}

	p := pool.New().WithErrors()
	p.Go(func() error {
		ev := realtime.NewEvent(realtime.EventNotification, realtime.UserTopic(n.UserID), "Notification", n.ID, n)
		if err := s.publisher.Publish(ctx, ev); err != nil {
			return fmt.Errorf("realtime: %w", err)
		}
		return nil
	})
	p.Go(func() error {
		return s.pushToDevices(ctx, n, link)
	})
	if mail != nil && s.mailer != nil {
		p.Go(func() error {
			return s.sendEmail(ctx, n.UserID, link, mail)
		})
	}
	if err := p.Wait(); err != nil {
		log.Warn().Err(err).Msg("notification delivery incomplete")
	}
}

func (s *Service) pushToDevices(ctx context.Context, n *Notification, link string) error {
	devices, err := s.devices.ListByUser(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("push: list devices: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}
	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = d.Token
	}
	stale, err := s.pusher.Send(ctx, tokens, push.Notification{
		Title: n.Title,
		Body:  n.Body,
		Link:  link,
		Data: map[string]string{
			"notification_id": n.ID.String(),
			"type":            n.Type,
		},
	})
	if len(stale) > 0 {
		if derr := s.devices.DeleteTokens(ctx, stale); derr != nil {
			s.logger.Warn().Err(derr).Int("count", len(stale)).Msg("prune stale device tokens")
		}
	}
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func (s *Service) sendEmail(ctx context.Context, userID uuid.UUID, link string, req *EmailRequest) error {
	contact, err := s.contacts.Contact(ctx, userID)
	if err != nil {
		return fmt.Errorf("email: resolve recipient: %w", err)
	}
	if contact.Email == "" {
		return nil
	}
	data := make(map[string]string, len(req.Data)+2)
	data["recipient_name"] = contact.Name
	data["link"] = link
	for k, v := range req.Data {
		data[k] = v
	}
	if err := s.mailer.SendTemplate(ctx, []string{contact.Email}, req.TemplateID, data); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.notifications.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.notifications.UnreadCount(ctx, userID)
}

// -- Devices --

func (s *Service) RegisterDevice(ctx context.Context, t *DeviceToken) error {
	t.Token = strings.TrimSpace(t.Token)
	if t.UserID == uuid.Nil {
		return apperr.Validation("user_id is required")
	}
	if t.Token == "" {
		return apperr.Validation("token is required")
	}
	if t.Platform == "" {
		t.Platform = "web"
	}
	if !validPlatforms[t.Platform] {
		return apperr.Validation("invalid platform: %s", t.Platform)
	}
	return s.devices.Upsert(ctx, t)
}

func (s *Service) UnregisterDevice(ctx context.Context, userID uuid.UUID, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.Validation("token is required")
	}
	return s.devices.Delete(ctx, userID, token)
}
