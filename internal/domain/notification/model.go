package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification types.
const (
	TypeRequestSubmitted     = "appointment_request"
	TypeRequestApproved      = "appointment_approved"
	TypeRequestRejected      = "appointment_rejected"
	TypeAppointmentCancelled = "appointment_cancelled"
	TypeAppointmentUpdated   = "appointment_updated"
	TypeAppointmentReminder  = "appointment_reminder"
	TypeConsultationStarted  = "consultation_started"
	TypePrescriptionIssued   = "prescription_issued"
	TypeNewMessage           = "new_message"
	TypeReportReady          = "report_ready"
)

// Notification is an in-app notice for one user.
type Notification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Link      *string    `db:"link" json:"link,omitempty"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// DeviceToken is a push registration for a browser or device.
type DeviceToken struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	Token      string    `db:"token" json:"token"`
	Platform   string    `db:"platform" json:"platform"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
}

// Request describes a notification to deliver.
type Request struct {
	UserID uuid.UUID
	Type   string
	Title  string
	Body   string
	Link   string
	// Email, when set, also sends the template to the user's address.
	Email *EmailRequest
}

type EmailRequest struct {
	TemplateID string
	Data       map[string]string
}
