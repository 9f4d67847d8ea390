package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

// =========== Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository {
	return &requestRepoPG{pool: pool}
}

const requestCols = `id, patient_id, doctor_id, specialty, reason, preferred_start, preferred_end, mode,
	status, matched_doctor_id, appointment_id, review_note, reviewed_by, reviewed_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.Specialty, &r.Reason, &r.PreferredStart,
		&r.PreferredEnd, &r.Mode, &r.Status, &r.MatchedDoctorID, &r.AppointmentID, &r.ReviewNote,
		&r.ReviewedBy, &r.ReviewedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "appointment request")
	}
	return &r, nil
}

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	req.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment_request (id, patient_id, doctor_id, specialty, reason,
			preferred_start, preferred_end, mode, status, matched_doctor_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		req.ID, req.PatientID, req.DoctorID, req.Specialty, req.Reason,
		req.PreferredStart, req.PreferredEnd, req.Mode, req.Status, req.MatchedDoctorID,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	return db.MapError(err, "appointment request")
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM appointment_request WHERE id = $1`, id))
}

func (r *requestRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM appointment_request WHERE id = $1 FOR UPDATE`, id))
}

func (r *requestRepoPG) Update(ctx context.Context, req *Request) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment_request SET doctor_id=$2, specialty=$3, reason=$4, preferred_start=$5,
			preferred_end=$6, mode=$7, status=$8, matched_doctor_id=$9, appointment_id=$10,
			review_note=$11, reviewed_by=$12, reviewed_at=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		req.ID, req.DoctorID, req.Specialty, req.Reason, req.PreferredStart, req.PreferredEnd,
		req.Mode, req.Status, req.MatchedDoctorID, req.AppointmentID, req.ReviewNote,
		req.ReviewedBy, req.ReviewedAt,
	).Scan(&req.UpdatedAt)
	return db.MapError(err, "appointment request")
}

func (r *requestRepoPG) List(ctx context.Context, f RequestFilter, limit, offset int) ([]*Request, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("(doctor_id = $%[1]d OR matched_doctor_id = $%[1]d)", *f.DoctorID)
	}
	if f.Specialty != "" {
		add("lower(specialty) = lower($%d)", f.Specialty)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointment_request`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT `+requestCols+` FROM appointment_request`+clause+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const appointmentCols = `id, request_id, patient_id, doctor_id, scheduled_at, duration_minutes, mode,
	status, notes, cancel_reason, reminder_sent_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.RequestID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.DurationMinutes,
		&a.Mode, &a.Status, &a.Notes, &a.CancelReason, &a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "appointment")
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, request_id, patient_id, doctor_id, scheduled_at, duration_minutes,
			mode, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.RequestID, a.PatientID, a.DoctorID, a.ScheduledAt, a.DurationMinutes,
		a.Mode, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.MapError(err, "appointment")
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET scheduled_at=$2, duration_minutes=$3, mode=$4, status=$5, notes=$6,
			cancel_reason=$7, reminder_sent_at=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.ScheduledAt, a.DurationMinutes, a.Mode, a.Status, a.Notes, a.CancelReason, a.ReminderSentAt,
	).Scan(&a.UpdatedAt)
	return db.MapError(err, "appointment")
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at < $%d", *f.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT `+appointmentCols+` FROM appointment`+clause+
		` ORDER BY scheduled_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) LockDoctorSchedule(ctx context.Context, doctorID uuid.UUID) error {
	var id uuid.UUID
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id FROM doctor WHERE id = $1 FOR UPDATE`, doctorID).Scan(&id)
	return db.MapError(err, "doctor")
}

func (r *appointmentRepoPG) HasConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND status = 'confirmed'
			  AND scheduled_at < $3
			  AND scheduled_at + make_interval(mins => duration_minutes) > $2
			  AND ($4::uuid IS NULL OR id <> $4)
		)`, doctorID, start, end, exclude).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) DueForReminder(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE status = 'confirmed' AND reminder_sent_at IS NULL
		  AND scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE appointment SET reminder_sent_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}
