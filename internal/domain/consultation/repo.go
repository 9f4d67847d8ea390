package consultation

import (
	"context"

	"github.com/google/uuid"
)

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Session, error)
	// GetOpenByAppointment returns the scheduled or active session of an
	// appointment.
	GetOpenByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	List(ctx context.Context, f SessionFilter, limit, offset int) ([]*Session, int, error)
}

type ParticipantRepository interface {
	Create(ctx context.Context, p *Participant) error
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*Participant, error)
	Update(ctx context.Context, p *Participant) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error)
}

type RecordingRepository interface {
	Create(ctx context.Context, r *Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*Recording, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Recording, error)
	// GetInProgress returns the session's recording that is still capturing.
	GetInProgress(ctx context.Context, sessionID uuid.UUID) (*Recording, error)
	Update(ctx context.Context, r *Recording) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Recording, error)
}
