package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/platform/media"
	"github.com/carelink/carelink/internal/platform/push"
	"github.com/carelink/carelink/internal/platform/summarizer"
)

// ---------------------------------------------------------------------------
// resolveSigningKey
// ---------------------------------------------------------------------------

func TestResolveSigningKey_FromEnv(t *testing.T) {
	value := strings.Repeat("k", 40)
	key, random, err := resolveSigningKey(value)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if random {
		t.Error("expected random=false when value is provided")
	}
	if string(key) != value {
		t.Errorf("key = %q, want %q", key, value)
	}
}

func TestResolveSigningKey_TooShort(t *testing.T) {
	if _, _, err := resolveSigningKey("short"); err == nil {
		t.Fatal("expected error for a short signing key")
	}
}

func TestResolveSigningKey_RandomGeneration(t *testing.T) {
	key, random, err := resolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !random {
		t.Error("expected random=true when no value is provided")
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}

	key2, _, err := resolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("two generated keys should differ")
	}
}

// ---------------------------------------------------------------------------
// sessionTopicAuthorizer
// ---------------------------------------------------------------------------

func TestSessionTopicAuthorizer(t *testing.T) {
	member := uuid.New()
	session := uuid.New()
	authorize := sessionTopicAuthorizer(func(_ context.Context, sessionID, userID uuid.UUID) bool {
		return sessionID == session && userID == member
	})

	tests := []struct {
		name   string
		userID string
		topic  string
		want   bool
	}{
		{"participant", member.String(), "session:" + session.String(), true},
		{"other user", uuid.NewString(), "session:" + session.String(), false},
		{"other session", member.String(), "session:" + uuid.NewString(), false},
		{"malformed session", member.String(), "session:not-a-uuid", false},
		{"malformed user", "nobody", "session:" + session.String(), false},
		{"foreign user topic", member.String(), "user:" + uuid.NewString(), false},
		{"unknown prefix", member.String(), "appointment:" + session.String(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authorize(context.Background(), tt.userID, tt.topic); got != tt.want {
				t.Errorf("authorize(%q, %q) = %v, want %v", tt.userID, tt.topic, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// integration selection
// ---------------------------------------------------------------------------

func TestNewMediaStore(t *testing.T) {
	if _, ok := newMediaStore(&config.Config{PublicBaseURL: "http://localhost:3000/"}).(*media.InMemoryStore); !ok {
		t.Error("expected in-memory store without MEDIA_API_URL")
	}
	if _, ok := newMediaStore(&config.Config{MediaAPIURL: "http://media.local"}).(*media.HTTPStore); !ok {
		t.Error("expected HTTP store with MEDIA_API_URL")
	}
}

func TestNewSummarizer_DisabledWithoutKey(t *testing.T) {
	if _, ok := newSummarizer(&config.Config{}).(summarizer.Disabled); !ok {
		t.Error("expected disabled summarizer without AI_API_KEY")
	}
	if _, ok := newSummarizer(&config.Config{AIAPIKey: "k", AIAPIURL: "http://ai.local", AIModel: "m"}).(summarizer.Disabled); ok {
		t.Error("expected a live summarizer with AI_API_KEY")
	}
}

func TestNewPushSender_NoopWithoutCredentials(t *testing.T) {
	s := newPushSender(context.Background(), &config.Config{}, newLogger(nil))
	if _, ok := s.(push.Noop); !ok {
		t.Errorf("expected push.Noop, got %T", s)
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{"admin", "doctor", "patient"} {
		if !validRole(r) {
			t.Errorf("validRole(%q) = false", r)
		}
	}
	for _, r := range []string{"", "nurse", "Admin"} {
		if validRole(r) {
			t.Errorf("validRole(%q) = true", r)
		}
	}
}
