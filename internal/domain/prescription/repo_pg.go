package prescription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const prescriptionCols = `id, patient_id, doctor_id, appointment_id, session_id, status, notes, issued_at, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.AppointmentID, &p.SessionID, &p.Status,
		&p.Notes, &p.IssuedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err, "prescription")
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	conn := db.Conn(ctx, r.pool)
	err := conn.QueryRow(ctx, `
		INSERT INTO prescription (id, patient_id, doctor_id, appointment_id, session_id, status, notes, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.DoctorID, p.AppointmentID, p.SessionID, p.Status, p.Notes, p.IssuedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return db.MapError(err, "prescription")
	}

	for _, it := range p.Items {
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
		_, err := conn.Exec(ctx, `
			INSERT INTO prescription_item (id, prescription_id, drug_name, dosage, frequency, duration_days, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, it.PrescriptionID, it.DrugName, it.Dosage, it.Frequency, it.DurationDays, it.Instructions)
		if err != nil {
			return db.MapError(err, "prescription item")
		}
	}
	return nil
}

func (r *repoPG) load(ctx context.Context, query string, id uuid.UUID) (*Prescription, error) {
	conn := db.Conn(ctx, r.pool)
	p, err := scanPrescription(conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, `
		SELECT id, prescription_id, drug_name, dosage, frequency, duration_days, instructions
		FROM prescription_item WHERE prescription_id = $1 ORDER BY drug_name`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.DrugName, &it.Dosage, &it.Frequency,
			&it.DurationDays, &it.Instructions); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, &it)
	}
	return p, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.load(ctx, `SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.load(ctx, `SELECT `+prescriptionCols+` FROM prescription WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) UpdateStatus(ctx context.Context, p *Prescription) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE prescription SET status = $2, notes = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Status, p.Notes,
	).Scan(&p.UpdatedAt)
	return db.MapError(err, "prescription")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
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
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM prescription`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT `+prescriptionCols+` FROM prescription`+clause+
		` ORDER BY issued_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ActiveDrugNames(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT lower(i.drug_name)
		FROM prescription_item i JOIN prescription p ON p.id = i.prescription_id
		WHERE p.patient_id = $1 AND p.status = 'active'`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
