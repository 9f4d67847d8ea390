package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores the prescription and its items.
	Create(ctx context.Context, p *Prescription) error
	// GetByID returns the prescription with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// UpdateStatus saves status and notes.
	UpdateStatus(ctx context.Context, p *Prescription) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error)
	// ActiveDrugNames lists drug names on the patient's active
	// prescriptions.
	ActiveDrugNames(ctx context.Context, patientID uuid.UUID) ([]string, error)
}
