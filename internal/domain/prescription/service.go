package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/email"
)

type Directory interface {
	Contact(ctx context.Context, id uuid.UUID) (*directory.Contact, error)
}

type Appointments interface {
	Lookup(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// Sessions reports consultation membership for session-linked
// prescriptions.
type Sessions interface {
	IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) bool
}

// Branding supplies the site name printed on documents.
type Branding interface {
	SiteName(ctx context.Context) string
}

type Notifier interface {
	Notify(ctx context.Context, req notification.Request) (*notification.Notification, error)
}

type Service struct {
	repo         Repository
	directory    Directory
	appointments Appointments
	sessions     Sessions
	notifier     Notifier
	branding     Branding
	tx           db.TxRunner
	logger       zerolog.Logger
	now          func() time.Time
}

// SetBranding sets where printed documents take the site name from.
func (s *Service) SetBranding(b Branding) {
	s.branding = b
}

func NewService(repo Repository, dir Directory, appointments Appointments, sessions Sessions,
	notifier Notifier, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		directory:    dir,
		appointments: appointments,
		sessions:     sessions,
		notifier:     notifier,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
	}
}

func validateItems(items []*Item) error {
	if len(items) == 0 {
		return apperr.Validation("at least one item is required")
	}
	if len(items) > maxItems {
		return apperr.Validation("a prescription holds at most %d items", maxItems)
	}
	for i, it := range items {
		if it == nil {
			return apperr.Validation("items[%d] is empty", i)
		}
		it.DrugName = strings.TrimSpace(it.DrugName)
		it.Dosage = strings.TrimSpace(it.Dosage)
		it.Frequency = strings.TrimSpace(it.Frequency)
		if it.DrugName == "" {
			return apperr.Validation("items[%d].drug_name is required", i)
		}
		if it.Dosage == "" {
			return apperr.Validation("items[%d].dosage is required", i)
		}
		if it.Frequency == "" {
			return apperr.Validation("items[%d].frequency is required", i)
		}
		if it.DurationDays < 0 || it.DurationDays > maxDurationDays {
			return apperr.Validation("items[%d].duration_days must be between 0 and %d", i, maxDurationDays)
		}
	}
	return nil
}

// Create issues a prescription. Interactions between the new drugs, and
// between them and the patient's other active prescriptions, are checked:
// major or contraindicated findings reject the prescription unless the
// prescriber overrides them. All findings come back as warnings.
func (s *Service) Create(ctx context.Context, in *CreateInput) (*CreateResult, error) {
	p := &in.Prescription
	if p.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if p.DoctorID == uuid.Nil && !auth.IsAdmin(ctx) {
		p.DoctorID = auth.UserUUIDFromContext(ctx)
	}
	if p.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if !auth.IsSelfOrAdmin(ctx, p.DoctorID) {
		return nil, fmt.Errorf("%w: doctors can only prescribe as themselves", apperr.ErrForbidden)
	}
	if err := validateItems(p.Items); err != nil {
		return nil, err
	}
	if p.Notes != nil {
		n := strings.TrimSpace(*p.Notes)
		p.Notes = &n
		if n == "" {
			p.Notes = nil
		}
	}

	patient, err := s.directory.Contact(ctx, p.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != auth.RolePatient {
		return nil, apperr.Validation("patient_id does not refer to a patient")
	}
	doctor, err := s.directory.Contact(ctx, p.DoctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != auth.RoleDoctor {
		return nil, apperr.Validation("doctor_id does not refer to a doctor")
	}
	if p.AppointmentID != nil {
		appt, err := s.appointments.Lookup(ctx, *p.AppointmentID)
		if err != nil {
			return nil, err
		}
		if appt.PatientID != p.PatientID || appt.DoctorID != p.DoctorID {
			return nil, apperr.Validation("appointment belongs to a different patient or doctor")
		}
	}
	if p.SessionID != nil && s.sessions != nil {
		if !s.sessions.IsParticipant(ctx, *p.SessionID, p.DoctorID) || !s.sessions.IsParticipant(ctx, *p.SessionID, p.PatientID) {
			return nil, apperr.Validation("consultation does not include this patient and doctor")
		}
	}

	var warnings []*Interaction
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.ActiveDrugNames(ctx, p.PatientID)
		if err != nil {
			return err
		}
		warnings = s.findings(p.Items, existing)
		if !in.OverrideInteractions {
			for _, w := range warnings {
				if w.Blocking() {
					return fmt.Errorf("%w: %s interaction between %s and %s: %s",
						apperr.ErrConflict, w.Severity, w.DrugA, w.DrugB, w.Description)
				}
			}
		}
		p.Status = StatusActive
		p.IssuedAt = s.now()
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if in.OverrideInteractions && len(warnings) > 0 {
		s.logger.Warn().
			Str("prescription_id", p.ID.String()).
			Str("doctor_id", p.DoctorID.String()).
			Int("findings", len(warnings)).
			Msg("prescription issued with interaction override")
	}
	s.notify(ctx, p, patient.Name, doctor.Name)
	return &CreateResult{Prescription: p, Warnings: warnings}, nil
}

// findings checks the new items against each other and the patient's
// active drugs, keeping only findings that involve a new drug.
func (s *Service) findings(items []*Item, existing []string) []*Interaction {
	fresh := make(map[string]bool, len(items))
	drugs := make([]string, 0, len(items)+len(existing))
	for _, it := range items {
		fresh[normalizeDrug(it.DrugName)] = true
		drugs = append(drugs, it.DrugName)
	}
	drugs = append(drugs, existing...)

	var out []*Interaction
	for _, f := range CheckInteractions(drugs) {
		if fresh[f.DrugA] || fresh[f.DrugB] {
			out = append(out, f)
		}
	}
	return out
}

func (s *Service) notify(ctx context.Context, p *Prescription, patientName, doctorName string) {
	lines := make([]string, len(p.Items))
	for i, it := range p.Items {
		lines[i] = fmt.Sprintf("- %s %s, %s", it.DrugName, it.Dosage, it.Frequency)
	}
	_, err := s.notifier.Notify(ctx, notification.Request{
		UserID: p.PatientID,
		Type:   notification.TypePrescriptionIssued,
		Title:  "New prescription",
		Body:   fmt.Sprintf("%s issued a prescription with %d item(s).", doctorName, len(p.Items)),
		Link:   "/prescriptions/" + p.ID.String(),
		Email: &notification.EmailRequest{
			TemplateID: email.TemplatePrescriptionIssued,
			Data: map[string]string{
				"patient_name": patientName,
				"doctor_name":  doctorName,
				"items":        strings.Join(lines, "\n"),
			},
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("prescription_id", p.ID.String()).Msg("notify prescription")
	}
}

// Get returns a prescription visible to its patient, its doctor or an
// administrator.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.IsSelfOrAdmin(ctx, p.PatientID, p.DoctorID) {
		return nil, apperr.ErrForbidden
	}
	return p, nil
}

// ListByPatient is open to the patient, any doctor and administrators.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Prescription, int, error) {
	if auth.HasRole(ctx, auth.RolePatient) && !auth.IsSelfOrAdmin(ctx, patientID) {
		return nil, 0, apperr.ErrForbidden
	}
	return s.list(ctx, Filter{PatientID: &patientID, Status: status}, limit, offset)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*Prescription, int, error) {
	if !auth.IsSelfOrAdmin(ctx, doctorID) {
		return nil, 0, apperr.ErrForbidden
	}
	return s.list(ctx, Filter{DoctorID: &doctorID, Status: status}, limit, offset)
}

func (s *Service) list(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Validation("invalid status: %s", f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Cancel withdraws an active prescription. The reason is appended to the
// notes.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Prescription, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	return s.close(ctx, id, StatusCancelled, func(p *Prescription) {
		note := "Cancelled: " + reason
		if p.Notes != nil && *p.Notes != "" {
			note = *p.Notes + "\n" + note
		}
		p.Notes = &note
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.close(ctx, id, StatusCompleted, func(*Prescription) {})
}

func (s *Service) close(ctx context.Context, id uuid.UUID, to string, fn func(*Prescription)) (*Prescription, error) {
	var p *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if !auth.IsSelfOrAdmin(ctx, p.DoctorID) {
			return apperr.ErrForbidden
		}
		if p.Status != StatusActive {
			return apperr.Transition("prescription", p.Status, to)
		}
		fn(p)
		p.Status = to
		return s.repo.UpdateStatus(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RenderPDF returns a printable copy of a prescription the caller may see.
func (s *Service) RenderPDF(ctx context.Context, id uuid.UUID) ([]byte, *Prescription, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	doc := Document{Prescription: p}
	if s.branding != nil {
		doc.SiteName = s.branding.SiteName(ctx)
	}
	if c, err := s.directory.Contact(ctx, p.PatientID); err == nil {
		doc.PatientName = c.Name
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, err
	}
	if c, err := s.directory.Contact(ctx, p.DoctorID); err == nil {
		doc.DoctorName = c.Name
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, err
	}
	out, err := RenderPDF(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("render prescription %s: %w", p.ID, err)
	}
	return out, p, nil
}
