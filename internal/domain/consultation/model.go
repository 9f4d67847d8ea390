package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Participant roles.
const (
	RoleDoctor   = "doctor"
	RolePatient  = "patient"
	RoleObserver = "observer"
)

// Participant statuses.
const (
	ParticipantInvited  = "invited"
	ParticipantJoined   = "joined"
	ParticipantLeft     = "left"
	ParticipantDeclined = "declined"
)

// Recording statuses.
const (
	RecordingInProgress = "recording"
	RecordingProcessing = "processing"
	RecordingCompleted  = "completed"
	RecordingFailed     = "failed"
	RecordingDeleted    = "deleted"
)

var sessionTransitions = map[string][]string{
	StatusScheduled: {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
}

var participantTransitions = map[string][]string{
	ParticipantInvited: {ParticipantJoined, ParticipantDeclined},
	ParticipantJoined:  {ParticipantLeft},
	ParticipantLeft:    {ParticipantJoined},
}

var recordingTransitions = map[string][]string{
	RecordingInProgress: {RecordingProcessing, RecordingDeleted},
	RecordingProcessing: {RecordingCompleted, RecordingFailed, RecordingDeleted},
	RecordingCompleted:  {RecordingDeleted},
	RecordingFailed:     {RecordingDeleted},
}

var validRoles = map[string]bool{
	RoleDoctor: true, RolePatient: true, RoleObserver: true,
}

var validSessionStatuses = map[string]bool{
	StatusScheduled: true, StatusActive: true, StatusCompleted: true, StatusCancelled: true,
}

func canTransition(table map[string][]string, from, to string) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is the video consultation held for an appointment.
type Session struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	RoomName      string     `db:"room_name" json:"room_name"`
	Status        string     `db:"status" json:"status"`
	StartedAt     *time.Time `db:"started_at" json:"started_at,omitempty"`
	EndedAt       *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CancelReason  *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Summary       *string    `db:"summary" json:"summary,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Participants []*Participant `db:"-" json:"participants,omitempty"`
	Recordings   []*Recording   `db:"-" json:"recordings,omitempty"`
}

// Terminal reports whether the session can no longer change.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

type Participant struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	SessionID uuid.UUID  `db:"session_id" json:"session_id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Role      string     `db:"role" json:"role"`
	Status    string     `db:"status" json:"status"`
	JoinedAt  *time.Time `db:"joined_at" json:"joined_at,omitempty"`
	LeftAt    *time.Time `db:"left_at" json:"left_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

type Recording struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	SessionID     uuid.UUID  `db:"session_id" json:"session_id"`
	Status        string     `db:"status" json:"status"`
	MediaID       *string    `db:"media_id" json:"media_id,omitempty"`
	MediaURL      *string    `db:"media_url" json:"media_url,omitempty"`
	Transcript    *string    `db:"transcript" json:"transcript,omitempty"`
	Summary       *string    `db:"summary" json:"summary,omitempty"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	StoppedAt     *time.Time `db:"stopped_at" json:"stopped_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

type SessionFilter struct {
	UserID        *uuid.UUID
	AppointmentID *uuid.UUID
	Status        string
}
