package report

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *ScheduledReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledReport, error)
	Update(ctx context.Context, r *ScheduledReport) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*ScheduledReport, int, error)
	ListActive(ctx context.Context) ([]*ScheduledReport, error)
	RecordRun(ctx context.Context, id uuid.UUID, run RunResult) error
}

// DataSource runs a report definition over [from, to).
type DataSource interface {
	Load(ctx context.Context, def *Definition, from, to time.Time) (*Dataset, error)
}
