// Package realtime pushes lifecycle events to connected browsers over
// WebSockets and, optionally, mirrors them to Kafka for other services.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope delivered to subscribers of Topic.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`

	// Primary marks the one copy of a state change that is fanned out to
	// several topics. Only primary events leave the process.
	Primary bool `json:"-"`
}

// AsPrimary returns a copy of e marked as the primary copy.
func (e Event) AsPrimary() Event {
	e.Primary = true
	return e
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event types.
const (
	EventNotification        = "notification.created"
	EventMessage             = "message.created"
	EventMessagesRead        = "message.read"
	EventAppointmentApproved = "appointment.approved"
	EventAppointmentChanged  = "appointment.updated"
	EventSessionStarted      = "consultation.started"
	EventSessionEnded        = "consultation.ended"
	EventSessionCancelled    = "consultation.cancelled"
	EventParticipantChanged  = "consultation.participant"
	EventRecordingChanged    = "consultation.recording"
)

// lifecycleEvents are the types mirrored outside the process. Notification
// and message events carry free text about patients and stay on the hub.
var lifecycleEvents = map[string]bool{
	EventAppointmentApproved: true,
	EventAppointmentChanged:  true,
	EventSessionStarted:      true,
	EventSessionEnded:        true,
	EventSessionCancelled:    true,
	EventParticipantChanged:  true,
	EventRecordingChanged:    true,
}

// IsLifecycle reports whether eventType records an appointment or
// consultation state change.
func IsLifecycle(eventType string) bool {
	return lifecycleEvents[eventType]
}

func UserTopic(id uuid.UUID) string {
	return "user:" + id.String()
}

func SessionTopic(id uuid.UUID) string {
	return "session:" + id.String()
}

// NewEvent builds an event, marshalling data to JSON. Data that cannot be
// marshalled is dropped.
func NewEvent(eventType, topic, resourceType string, resourceID uuid.UUID, data interface{}) Event {
	ev := Event{
		Type:         eventType,
		Topic:        topic,
		ResourceType: resourceType,
		ResourceID:   resourceID.String(),
		Timestamp:    time.Now().UTC(),
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			ev.Data = b
		}
	}
	return ev
}

// Discard drops every event. It stands in where no transport is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
