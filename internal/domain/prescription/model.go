package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Prescription statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusActive: true, StatusCompleted: true, StatusCancelled: true,
}

const (
	maxItems        = 20
	maxDurationDays = 365
)

type Prescription struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	SessionID     *uuid.UUID `db:"session_id" json:"session_id,omitempty"`
	Status        string     `db:"status" json:"status"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	IssuedAt      time.Time  `db:"issued_at" json:"issued_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Items []*Item `db:"-" json:"items"`
}

type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	DrugName       string    `db:"drug_name" json:"drug_name"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Frequency      string    `db:"frequency" json:"frequency"`
	DurationDays   int       `db:"duration_days" json:"duration_days"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
}

// CreateInput is a new prescription plus the decision on interaction
// findings.
type CreateInput struct {
	Prescription
	OverrideInteractions bool `json:"override_interactions"`
}

// CreateResult carries the stored prescription and any interaction
// findings, which are warnings once the prescription is accepted.
type CreateResult struct {
	Prescription *Prescription  `json:"prescription"`
	Warnings     []*Interaction `json:"warnings,omitempty"`
}

type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    string
}
