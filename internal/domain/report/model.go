package report

import (
	"time"

	"github.com/google/uuid"
)

// Run outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const (
	DefaultPeriodDays = 7
	MaxPeriodDays     = 366
	maxRecipients     = 20
)

// ScheduledReport is an admin-defined spreadsheet that is generated on a
// cron schedule and mailed to its recipients.
type ScheduledReport struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	ReportType  string     `db:"report_type" json:"report_type"`
	Schedule    string     `db:"schedule" json:"schedule"`
	PeriodDays  int        `db:"period_days" json:"period_days"`
	Recipients  []string   `db:"recipients" json:"recipients"`
	Active      bool       `db:"active" json:"active"`
	LastRunAt   *time.Time `db:"last_run_at" json:"last_run_at,omitempty"`
	LastStatus  *string    `db:"last_status" json:"last_status,omitempty"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`
	LastMediaID *string    `db:"last_media_id" json:"last_media_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// RunResult is what a single execution records on its report.
type RunResult struct {
	At      time.Time
	Status  string
	Error   *string
	MediaID *string
}

// Dataset is the tabular output of a report query.
type Dataset struct {
	Columns []string
	Rows    [][]interface{}
}
