package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Request statuses.
const (
	RequestPending   = "pending"
	RequestApproved  = "approved"
	RequestRejected  = "rejected"
	RequestCancelled = "cancelled"
)

// Appointment statuses.
const (
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

// Consultation modes.
const (
	ModeVideo    = "video"
	ModeInPerson = "in-person"
)

const (
	DefaultDurationMinutes = 30
	MinDurationMinutes     = 5
	MaxDurationMinutes     = 480
)

var validModes = map[string]bool{
	ModeVideo: true, ModeInPerson: true,
}

var validAppointmentStatuses = map[string]bool{
	StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
}

var validRequestStatuses = map[string]bool{
	RequestPending: true, RequestApproved: true, RequestRejected: true, RequestCancelled: true,
}

// Request is a patient's ask for an appointment, reviewed by a doctor or
// an administrator.
type Request struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	Specialty       string     `db:"specialty" json:"specialty"`
	Reason          string     `db:"reason" json:"reason"`
	PreferredStart  time.Time  `db:"preferred_start" json:"preferred_start"`
	PreferredEnd    time.Time  `db:"preferred_end" json:"preferred_end"`
	Mode            string     `db:"mode" json:"mode"`
	Status          string     `db:"status" json:"status"`
	MatchedDoctorID *uuid.UUID `db:"matched_doctor_id" json:"matched_doctor_id,omitempty"`
	AppointmentID   *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	ReviewNote      *string    `db:"review_note" json:"review_note,omitempty"`
	ReviewedBy      *uuid.UUID `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Appointment is a confirmed booking between a patient and a doctor.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	RequestID       *uuid.UUID `db:"request_id" json:"request_id,omitempty"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ScheduledAt     time.Time  `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Mode            string     `db:"mode" json:"mode"`
	Status          string     `db:"status" json:"status"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CancelReason    *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	ReminderSentAt  *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	// ConsultationID is set on the response to an approval that opened a
	// video consultation.
	ConsultationID *uuid.UUID `db:"-" json:"consultation_id,omitempty"`
}

// EndsAt is the end of the booked slot.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether [start, end) intersects the appointment.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledAt.Before(end) && a.EndsAt().After(start)
}

// ApproveInput overrides the defaults taken from the request.
type ApproveInput struct {
	DoctorID        *uuid.UUID `json:"doctor_id"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Note            string     `json:"note"`
}

type RequestFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Specialty string
	Status    string
}

type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    string
	From      *time.Time
	To        *time.Time
}
