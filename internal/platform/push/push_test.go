package push

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
)

type fakeMulticaster struct {
	batches [][]string
	err     error
}

func (f *fakeMulticaster) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, m.Tokens)
	resp := &messaging.BatchResponse{}
	for range m.Tokens {
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true})
		resp.SuccessCount++
	}
	return resp, nil
}

func TestFCMSender_BatchesTokens(t *testing.T) {
	fake := &fakeMulticaster{}
	s := &FCMSender{client: fake, timeout: 1e9}

	tokens := make([]string, 1200)
	for i := range tokens {
		tokens[i] = "tok"
	}
	stale, err := s.Send(context.Background(), tokens, Notification{Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected no stale tokens, got %d", len(stale))
	}
	if len(fake.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(fake.batches))
	}
	if len(fake.batches[2]) != 200 {
		t.Errorf("expected last batch of 200, got %d", len(fake.batches[2]))
	}
}

func TestFCMSender_NoTokens(t *testing.T) {
	fake := &fakeMulticaster{}
	s := &FCMSender{client: fake, timeout: 1e9}
	if _, err := s.Send(context.Background(), nil, Notification{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.batches) != 0 {
		t.Error("expected no requests")
	}
}

func TestFCMSender_Error(t *testing.T) {
	s := &FCMSender{client: &fakeMulticaster{err: errors.New("unavailable")}, timeout: 1e9}
	if _, err := s.Send(context.Background(), []string{"a"}, Notification{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildMessage_Link(t *testing.T) {
	m := buildMessage([]string{"a"}, Notification{Title: "t", Link: "https://carelink.example/appointments/1"})
	if m.Webpush.FCMOptions == nil || m.Webpush.FCMOptions.Link == "" {
		t.Fatal("expected webpush link")
	}
	if buildMessage([]string{"a"}, Notification{}).Webpush.FCMOptions != nil {
		t.Error("expected no link options")
	}
}
