package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RequestRepository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	Update(ctx context.Context, r *Request) error
	List(ctx context.Context, f RequestFilter, limit, offset int) ([]*Request, int, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	// LockDoctorSchedule serialises bookings for doctorID until the
	// surrounding transaction ends. Callers take it before HasConflict.
	LockDoctorSchedule(ctx context.Context, doctorID uuid.UUID) error
	// HasConflict reports a confirmed appointment for doctorID overlapping
	// [start, end), ignoring exclude.
	HasConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (bool, error)
	// DueForReminder returns confirmed appointments starting in [from, to)
	// that have not had a reminder.
	DueForReminder(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}
