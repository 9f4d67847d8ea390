package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const reportCols = `id, name, report_type, schedule, period_days, recipients, active,
	last_run_at, last_status, last_error, last_media_id, created_at, updated_at`

func scanReport(row pgx.Row) (*ScheduledReport, error) {
	var r ScheduledReport
	err := row.Scan(&r.ID, &r.Name, &r.ReportType, &r.Schedule, &r.PeriodDays, &r.Recipients, &r.Active,
		&r.LastRunAt, &r.LastStatus, &r.LastError, &r.LastMediaID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "scheduled report")
	}
	return &r, nil
}

func (r *repoPG) Create(ctx context.Context, rep *ScheduledReport) error {
	rep.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO scheduled_report (id, name, report_type, schedule, period_days, recipients, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		rep.ID, rep.Name, rep.ReportType, rep.Schedule, rep.PeriodDays, rep.Recipients, rep.Active,
	).Scan(&rep.CreatedAt, &rep.UpdatedAt)
	return db.MapError(err, "scheduled report")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduledReport, error) {
	return scanReport(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+reportCols+` FROM scheduled_report WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rep *ScheduledReport) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE scheduled_report SET name=$2, report_type=$3, schedule=$4, period_days=$5,
			recipients=$6, active=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rep.ID, rep.Name, rep.ReportType, rep.Schedule, rep.PeriodDays, rep.Recipients, rep.Active,
	).Scan(&rep.UpdatedAt)
	return db.MapError(err, "scheduled report")
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM scheduled_report WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "scheduled report")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*ScheduledReport, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_report`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+reportCols+` FROM scheduled_report
		ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListActive(ctx context.Context) ([]*ScheduledReport, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+reportCols+` FROM scheduled_report
		WHERE active ORDER BY last_run_at NULLS FIRST`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*ScheduledReport, error) {
	defer rows.Close()
	var items []*ScheduledReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rep)
	}
	return items, rows.Err()
}

func (r *repoPG) RecordRun(ctx context.Context, id uuid.UUID, run RunResult) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE scheduled_report SET last_run_at=$2, last_status=$3, last_error=$4,
			last_media_id=COALESCE($5, last_media_id), updated_at=NOW()
		WHERE id = $1`,
		id, run.At, run.Status, run.Error, run.MediaID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "scheduled report")
	}
	return nil
}

// =========== Data Source ===========

type dataSourcePG struct{ pool *pgxpool.Pool }

// NewDataSourcePG runs report definitions against the live tables.
func NewDataSourcePG(pool *pgxpool.Pool) DataSource {
	return &dataSourcePG{pool: pool}
}

func (d *dataSourcePG) Load(ctx context.Context, def *Definition, from, to time.Time) (*Dataset, error) {
	rows, err := db.Conn(ctx, d.pool).Query(ctx, def.SQL, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ds := &Dataset{Columns: def.Columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		ds.Rows = append(ds.Rows, values)
	}
	return ds, rows.Err()
}
