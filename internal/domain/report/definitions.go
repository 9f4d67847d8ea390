package report

import "sort"

// Report types.
const (
	TypeAppointmentVolume    = "appointment-volume"
	TypeConsultationOutcomes = "consultation-outcomes"
	TypePrescriptionVolume   = "prescription-volume"
	TypeRequestBacklog       = "request-backlog"
)

// Definition describes a report type and the query behind it. Every query
// takes the period start and end as $1 and $2.
type Definition struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
	SQL         string   `json:"-"`
}

var definitions = map[string]*Definition{
	TypeAppointmentVolume: {
		Type:        TypeAppointmentVolume,
		Title:       "Appointment Volume",
		Description: "Appointments in the period per doctor, mode and status",
		Columns:     []string{"Doctor", "Specialty", "Mode", "Status", "Appointments"},
		SQL: `SELECT d.full_name, d.specialty, a.mode, a.status, COUNT(*) AS total
			FROM appointment a JOIN doctor d ON d.id = a.doctor_id
			WHERE a.scheduled_at >= $1 AND a.scheduled_at < $2
			GROUP BY d.full_name, d.specialty, a.mode, a.status
			ORDER BY d.full_name, a.mode, a.status`,
	},
	TypeConsultationOutcomes: {
		Type:        TypeConsultationOutcomes,
		Title:       "Consultation Outcomes",
		Description: "Video consultations created in the period by final status, with average length and recordings",
		Columns:     []string{"Status", "Sessions", "Average minutes", "Recordings"},
		SQL: `SELECT s.status, COUNT(DISTINCT s.id) AS sessions,
				COALESCE(ROUND(AVG(EXTRACT(EPOCH FROM (s.ended_at - s.started_at)) / 60)::numeric, 1), 0)::float8 AS avg_minutes,
				COUNT(r.id) FILTER (WHERE r.status = 'completed') AS recordings
			FROM consultation_session s
			LEFT JOIN consultation_recording r ON r.session_id = s.id
			WHERE s.created_at >= $1 AND s.created_at < $2
			GROUP BY s.status
			ORDER BY s.status`,
	},
	TypePrescriptionVolume: {
		Type:        TypePrescriptionVolume,
		Title:       "Prescription Volume",
		Description: "Drugs prescribed in the period with prescription and patient counts",
		Columns:     []string{"Drug", "Prescriptions", "Patients", "Cancelled"},
		SQL: `SELECT LOWER(i.drug_name) AS drug, COUNT(DISTINCT p.id) AS prescriptions,
				COUNT(DISTINCT p.patient_id) AS patients,
				COUNT(DISTINCT p.id) FILTER (WHERE p.status = 'cancelled') AS cancelled
			FROM prescription p JOIN prescription_item i ON i.prescription_id = p.id
			WHERE p.issued_at >= $1 AND p.issued_at < $2
			GROUP BY LOWER(i.drug_name)
			ORDER BY prescriptions DESC, drug`,
	},
	TypeRequestBacklog: {
		Type:        TypeRequestBacklog,
		Title:       "Request Backlog",
		Description: "Appointment requests submitted in the period per specialty and review outcome",
		Columns:     []string{"Specialty", "Pending", "Approved", "Rejected", "Cancelled", "Oldest pending"},
		SQL: `SELECT r.specialty,
				COUNT(*) FILTER (WHERE r.status = 'pending') AS pending,
				COUNT(*) FILTER (WHERE r.status = 'approved') AS approved,
				COUNT(*) FILTER (WHERE r.status = 'rejected') AS rejected,
				COUNT(*) FILTER (WHERE r.status = 'cancelled') AS cancelled,
				MIN(r.created_at) FILTER (WHERE r.status = 'pending') AS oldest_pending
			FROM appointment_request r
			WHERE r.created_at >= $1 AND r.created_at < $2
			GROUP BY r.specialty
			ORDER BY pending DESC, r.specialty`,
	},
}

// Lookup returns the definition for a report type.
func Lookup(reportType string) (*Definition, bool) {
	d, ok := definitions[reportType]
	return d, ok
}

// Definitions lists every report type, sorted by type.
func Definitions() []*Definition {
	out := make([]*Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
