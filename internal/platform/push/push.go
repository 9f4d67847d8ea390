// Package push delivers browser and device notifications through Firebase
// Cloud Messaging.
package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Notification is a push payload.
type Notification struct {
	Title string
	Body  string
	Link  string
	Data  map[string]string
}

// Sender sends a notification to device tokens. It returns the tokens the
// provider reported as no longer registered so callers can prune them.
type Sender interface {
	Send(ctx context.Context, tokens []string, n Notification) (stale []string, err error)
}

// multicaster is the subset of *messaging.Client used here.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender sends through Firebase Cloud Messaging.
type FCMSender struct {
	client  multicaster
	timeout time.Duration
}

// NewFCMSender initialises a Firebase app. An empty credentialsFile uses
// application default credentials.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase messaging: %w", err)
	}
	return &FCMSender{client: client, timeout: 10 * time.Second}, nil
}

// maxMulticastTokens is the FCM limit per multicast request.
const maxMulticastTokens = 500

func (s *FCMSender) Send(ctx context.Context, tokens []string, n Notification) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stale []string
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := start + maxMulticastTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := s.client.SendEachForMulticast(ctx, buildMessage(batch, n))
		if err != nil {
			return stale, fmt.Errorf("fcm multicast: %w", err)
		}
		for i, r := range resp.Responses {
			if r.Error != nil && messaging.IsRegistrationTokenNotRegistered(r.Error) {
				stale = append(stale, batch[i])
			}
		}
	}
	return stale, nil
}

func buildMessage(tokens []string, n Notification) *messaging.MulticastMessage {
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:    "default",
				Priority: messaging.PriorityHigh,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{Title: n.Title, Body: n.Body},
					Sound: "default",
				},
			},
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{Title: n.Title, Body: n.Body},
		},
	}
	if n.Link != "" {
		msg.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: n.Link}
	}
	return msg
}

// Noop drops every notification.
type Noop struct{}

func (Noop) Send(context.Context, []string, Notification) ([]string, error) { return nil, nil }

// Recorder keeps sent notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	Sent  []Notification
	Stale []string
}

func (r *Recorder) Send(_ context.Context, tokens []string, n Notification) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(tokens) > 0 {
		r.Sent = append(r.Sent, n)
	}
	return r.Stale, nil
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent)
}
