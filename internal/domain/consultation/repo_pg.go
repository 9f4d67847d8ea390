package consultation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

const sessionCols = `s.id, s.appointment_id, s.room_name, s.status, s.started_at, s.ended_at,
	s.cancel_reason, s.summary, s.created_at, s.updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.AppointmentID, &s.RoomName, &s.Status, &s.StartedAt, &s.EndedAt,
		&s.CancelReason, &s.Summary, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "consultation session")
	}
	return &s, nil
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consultation_session (id, appointment_id, room_name, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		s.ID, s.AppointmentID, s.RoomName, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return db.MapError(err, "consultation session")
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM consultation_session s WHERE s.id = $1`, id))
}

func (r *sessionRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM consultation_session s WHERE s.id = $1 FOR UPDATE`, id))
}

func (r *sessionRepoPG) GetOpenByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Session, error) {
	return scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM consultation_session s
		WHERE s.appointment_id = $1 AND s.status IN ('scheduled', 'active')
		FOR UPDATE`, appointmentID))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE consultation_session SET status=$2, started_at=$3, ended_at=$4, cancel_reason=$5,
			summary=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Status, s.StartedAt, s.EndedAt, s.CancelReason, s.Summary,
	).Scan(&s.UpdatedAt)
	return db.MapError(err, "consultation session")
}

func (r *sessionRepoPG) List(ctx context.Context, f SessionFilter, limit, offset int) ([]*Session, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != nil {
		add("EXISTS (SELECT 1 FROM consultation_participant p WHERE p.session_id = s.id AND p.user_id = $%d)", *f.UserID)
	}
	if f.AppointmentID != nil {
		add("s.appointment_id = $%d", *f.AppointmentID)
	}
	if f.Status != "" {
		add("s.status = $%d", f.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM consultation_session s`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT `+sessionCols+` FROM consultation_session s`+clause+
		` ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Participant Repository ===========

type participantRepoPG struct{ pool *pgxpool.Pool }

func NewParticipantRepoPG(pool *pgxpool.Pool) ParticipantRepository {
	return &participantRepoPG{pool: pool}
}

const participantCols = `id, session_id, user_id, role, status, joined_at, left_at, created_at`

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant
	if err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Role, &p.Status, &p.JoinedAt, &p.LeftAt, &p.CreatedAt); err != nil {
		return nil, db.MapError(err, "participant")
	}
	return &p, nil
}

func (r *participantRepoPG) Create(ctx context.Context, p *Participant) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consultation_participant (id, session_id, user_id, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		p.ID, p.SessionID, p.UserID, p.Role, p.Status,
	).Scan(&p.CreatedAt)
	return db.MapError(err, "participant")
}

func (r *participantRepoPG) Get(ctx context.Context, sessionID, userID uuid.UUID) (*Participant, error) {
	return scanParticipant(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+participantCols+` FROM consultation_participant WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID))
}

func (r *participantRepoPG) Update(ctx context.Context, p *Participant) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE consultation_participant SET role=$2, status=$3, joined_at=$4, left_at=$5
		WHERE id = $1`,
		p.ID, p.Role, p.Status, p.JoinedAt, p.LeftAt)
	if err != nil {
		return db.MapError(err, "participant")
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "participant")
	}
	return nil
}

func (r *participantRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+participantCols+` FROM consultation_participant WHERE session_id = $1 ORDER BY created_at`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Recording Repository ===========

type recordingRepoPG struct{ pool *pgxpool.Pool }

func NewRecordingRepoPG(pool *pgxpool.Pool) RecordingRepository {
	return &recordingRepoPG{pool: pool}
}

const recordingCols = `id, session_id, status, media_id, media_url, transcript, summary, failure_reason,
	started_at, stopped_at, created_at, updated_at`

func scanRecording(row pgx.Row) (*Recording, error) {
	var rec Recording
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Status, &rec.MediaID, &rec.MediaURL, &rec.Transcript,
		&rec.Summary, &rec.FailureReason, &rec.StartedAt, &rec.StoppedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "recording")
	}
	return &rec, nil
}

func (r *recordingRepoPG) Create(ctx context.Context, rec *Recording) error {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consultation_recording (id, session_id, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		rec.ID, rec.SessionID, rec.Status, rec.StartedAt,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	return db.MapError(err, "recording")
}

func (r *recordingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Recording, error) {
	return scanRecording(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordingCols+` FROM consultation_recording WHERE id = $1`, id))
}

func (r *recordingRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Recording, error) {
	return scanRecording(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordingCols+` FROM consultation_recording WHERE id = $1 FOR UPDATE`, id))
}

func (r *recordingRepoPG) GetInProgress(ctx context.Context, sessionID uuid.UUID) (*Recording, error) {
	return scanRecording(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordingCols+` FROM consultation_recording WHERE session_id = $1 AND status = 'recording'`,
		sessionID))
}

func (r *recordingRepoPG) Update(ctx context.Context, rec *Recording) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE consultation_recording SET status=$2, media_id=$3, media_url=$4, transcript=$5,
			summary=$6, failure_reason=$7, stopped_at=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rec.ID, rec.Status, rec.MediaID, rec.MediaURL, rec.Transcript, rec.Summary,
		rec.FailureReason, rec.StoppedAt,
	).Scan(&rec.UpdatedAt)
	return db.MapError(err, "recording")
}

func (r *recordingRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Recording, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+recordingCols+` FROM consultation_recording WHERE session_id = $1 ORDER BY started_at`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
