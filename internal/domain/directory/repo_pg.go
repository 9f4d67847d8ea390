package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorCols = `id, full_name, email, phone, specialty, bio, active, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FullName, &d.Email, &d.Phone, &d.Specialty, &d.Bio,
		&d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "doctor")
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor (id, full_name, email, phone, specialty, bio, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.FullName, d.Email, d.Phone, d.Specialty, d.Bio, d.Active,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return db.MapError(err, "doctor")
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctor WHERE lower(email) = lower($1)`, email))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE doctor SET full_name=$2, email=$3, phone=$4, specialty=$5, bio=$6, active=$7,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FullName, d.Email, d.Phone, d.Specialty, d.Bio, d.Active,
	).Scan(&d.UpdatedAt)
	return db.MapError(err, "doctor")
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	var where []string
	var args []interface{}
	if f.Specialty != "" {
		args = append(args, f.Specialty)
		where = append(where, fmt.Sprintf("lower(specialty) = lower($%d)", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT `+doctorCols+` FROM doctor`+clause+
		` ORDER BY full_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, full_name, email, phone, date_of_birth, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "patient")
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, full_name, email, phone, date_of_birth)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.Email, p.Phone, p.DateOfBirth,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.MapError(err, "patient")
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE lower(email) = lower($1)`, email))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET full_name=$2, email=$3, phone=$4, date_of_birth=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.Email, p.Phone, p.DateOfBirth,
	).Scan(&p.UpdatedAt)
	return db.MapError(err, "patient")
}

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	clause := ""
	var args []interface{}
	if search != "" {
		args = append(args, "%"+search+"%")
		clause = " WHERE full_name ILIKE $1 OR email ILIKE $1"
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patient`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT `+patientCols+` FROM patient`+clause+
		` ORDER BY full_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
