package prescription

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/pkg/pagination"
)

// -- mocks --

type mockRepo struct {
	items map[uuid.UUID]*Prescription
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Prescription)}
}

func clone(p *Prescription) *Prescription {
	cp := *p
	cp.Items = make([]*Item, len(p.Items))
	for i, it := range p.Items {
		c := *it
		cp.Items[i] = &c
	}
	return &cp
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	for _, it := range p.Items {
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
	}
	m.items[p.ID] = clone(p)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("prescription")
	}
	return clone(p), nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) UpdateStatus(_ context.Context, p *Prescription) error {
	stored, ok := m.items[p.ID]
	if !ok {
		return apperr.NotFound("prescription")
	}
	stored.Status = p.Status
	stored.Notes = p.Notes
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	var result []*Prescription
	for _, p := range m.items {
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && p.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		result = append(result, clone(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IssuedAt.After(result[j].IssuedAt) })
	return pagination.Window(result, limit, offset), len(result), nil
}

func (m *mockRepo) ActiveDrugNames(_ context.Context, patientID uuid.UUID) ([]string, error) {
	var names []string
	for _, p := range m.items {
		if p.PatientID != patientID || p.Status != StatusActive {
			continue
		}
		for _, it := range p.Items {
			names = append(names, strings.ToLower(it.DrugName))
		}
	}
	return names, nil
}

type mockDirectory struct {
	contacts map[uuid.UUID]*directory.Contact
}

func (m *mockDirectory) add(name, role string) uuid.UUID {
	id := uuid.New()
	m.contacts[id] = &directory.Contact{ID: id, Name: name, Email: strings.ToLower(strings.Fields(name)[0]) + "@example.com", Role: role}
	return id
}

func (m *mockDirectory) Contact(_ context.Context, id uuid.UUID) (*directory.Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return c, nil
}

type mockAppointments map[uuid.UUID]*appointment.Appointment

func (m mockAppointments) Lookup(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return a, nil
}

type mockSessions map[uuid.UUID][]uuid.UUID

func (m mockSessions) IsParticipant(_ context.Context, sessionID, userID uuid.UUID) bool {
	for _, id := range m[sessionID] {
		if id == userID {
			return true
		}
	}
	return false
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Request
}

func (n *recordingNotifier) Notify(_ context.Context, req notification.Request) (*notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	return &notification.Notification{ID: uuid.New()}, nil
}

type staticBranding string

func (b staticBranding) SiteName(context.Context) string { return string(b) }

// -- fixture --

type fixture struct {
	svc      *Service
	repo     *mockRepo
	dir      *mockDirectory
	appts    mockAppointments
	sessions mockSessions
	notifier *recordingNotifier
	doctor   uuid.UUID
	patient  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		dir:      &mockDirectory{contacts: make(map[uuid.UUID]*directory.Contact)},
		appts:    mockAppointments{},
		sessions: mockSessions{},
		notifier: &recordingNotifier{},
	}
	f.doctor = f.dir.add("Asha Rao", auth.RoleDoctor)
	f.patient = f.dir.add("Pat Lee", auth.RolePatient)
	f.svc = NewService(f.repo, f.dir, f.appts, f.sessions, f.notifier, db.NopTxRunner{}, zerolog.Nop())
	f.svc.SetBranding(staticBranding("Riverside Clinic"))
	return f
}

func asUser(id uuid.UUID, role string) context.Context {
	return auth.WithUser(context.Background(), id.String(), []string{role})
}

func (f *fixture) doctorCtx() context.Context { return asUser(f.doctor, auth.RoleDoctor) }

func (f *fixture) input(drugs ...string) *CreateInput {
	in := &CreateInput{}
	in.PatientID = f.patient
	for _, d := range drugs {
		in.Items = append(in.Items, &Item{DrugName: d, Dosage: "10 mg", Frequency: "once daily", DurationDays: 14})
	}
	return in
}

// -- tests --

func TestCheckInteractions(t *testing.T) {
	tests := []struct {
		name  string
		drugs []string
		want  []string
	}{
		{"none", []string{"amoxicillin", "paracetamol"}, nil},
		{"case and order", []string{"Aspirin", "  WARFARIN "}, []string{SeverityMajor}},
		{"most severe first", []string{"warfarin", "paracetamol", "sildenafil", "nitroglycerin"}, []string{SeverityContraindicated, SeverityMinor}},
		{"duplicate", []string{"metformin", "Metformin"}, []string{SeverityModerate}},
		{"multi-word", []string{"isosorbide  mononitrate", "sildenafil"}, []string{SeverityContraindicated}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckInteractions(tt.drugs)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d findings, got %+v", len(tt.want), got)
			}
			for i, sev := range tt.want {
				if got[i].Severity != sev {
					t.Errorf("finding %d: expected %s, got %s", i, sev, got[i].Severity)
				}
			}
		})
	}
}

func TestInteractionBlocking(t *testing.T) {
	if (&Interaction{Severity: SeverityModerate}).Blocking() {
		t.Error("expected moderate not to block")
	}
	if !(&Interaction{Severity: SeverityMajor}).Blocking() {
		t.Error("expected major to block")
	}
}

func TestCreate(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Create(f.doctorCtx(), f.input("Amoxicillin", "Paracetamol"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := res.Prescription
	if p.DoctorID != f.doctor {
		t.Errorf("expected doctor to default to caller, got %s", p.DoctorID)
	}
	if p.Status != StatusActive || p.IssuedAt.IsZero() {
		t.Errorf("unexpected prescription: %+v", p)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", res.Warnings)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected patient notification, got %d", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.UserID != f.patient || n.Type != notification.TypePrescriptionIssued {
		t.Errorf("unexpected notification: %+v", n)
	}
	if !strings.Contains(n.Email.Data["items"], "Amoxicillin 10 mg, once daily") {
		t.Errorf("unexpected items text %q", n.Email.Data["items"])
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"no items", func(in *CreateInput) { in.Items = nil }},
		{"no patient", func(in *CreateInput) { in.PatientID = uuid.Nil }},
		{"missing drug", func(in *CreateInput) { in.Items[0].DrugName = " " }},
		{"missing dosage", func(in *CreateInput) { in.Items[0].Dosage = "" }},
		{"missing frequency", func(in *CreateInput) { in.Items[0].Frequency = "" }},
		{"negative duration", func(in *CreateInput) { in.Items[0].DurationDays = -1 }},
		{"duration over a year", func(in *CreateInput) { in.Items[0].DurationDays = 366 }},
		{"patient is a doctor", func(in *CreateInput) { in.PatientID = f.doctor }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input("amoxicillin")
			tt.mutate(in)
			_, err := f.svc.Create(f.doctorCtx(), in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreate_WithoutDuration(t *testing.T) {
	f := newFixture()
	in := f.input("paracetamol")
	in.Items[0].DurationDays = 0

	res, err := f.svc.Create(f.doctorCtx(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Prescription.Items[0].DurationDays; got != 0 {
		t.Errorf("duration_days = %d, want 0", got)
	}
}

func TestCreate_OtherDoctorForbidden(t *testing.T) {
	f := newFixture()
	other := f.dir.add("Chen Wu", auth.RoleDoctor)
	in := f.input("amoxicillin")
	in.DoctorID = other

	if _, err := f.svc.Create(f.doctorCtx(), in); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestCreate_BlockingInteraction(t *testing.T) {
	f := newFixture()
	in := f.input("warfarin", "aspirin")

	if _, err := f.svc.Create(f.doctorCtx(), in); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.repo.items) != 0 {
		t.Error("expected nothing to be stored")
	}

	in.OverrideInteractions = true
	res, err := f.svc.Create(f.doctorCtx(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Severity != SeverityMajor {
		t.Errorf("expected major warning, got %+v", res.Warnings)
	}
}

func TestCreate_ChecksActivePrescriptions(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Create(f.doctorCtx(), f.input("sildenafil", "simvastatin")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.svc.Create(f.doctorCtx(), f.input("Nitroglycerin"))
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict with active sildenafil, got %v", err)
	}

	res, err := f.svc.Create(f.doctorCtx(), f.input("lisinopril"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected existing pairs not to be reported again, got %+v", res.Warnings)
	}
}

func TestCreate_InactivePrescriptionsIgnored(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Create(f.doctorCtx(), f.input("sildenafil"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Complete(f.doctorCtx(), res.Prescription.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Create(f.doctorCtx(), f.input("nitroglycerin")); err != nil {
		t.Errorf("expected completed prescriptions to be ignored, got %v", err)
	}
}

func TestCreate_AppointmentLink(t *testing.T) {
	f := newFixture()
	appt := &appointment.Appointment{ID: uuid.New(), PatientID: f.patient, DoctorID: f.doctor}
	stranger := &appointment.Appointment{ID: uuid.New(), PatientID: uuid.New(), DoctorID: f.doctor}
	f.appts[appt.ID] = appt
	f.appts[stranger.ID] = stranger

	in := f.input("amoxicillin")
	in.AppointmentID = &appt.ID
	if _, err := f.svc.Create(f.doctorCtx(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in = f.input("amoxicillin")
	in.AppointmentID = &stranger.ID
	if _, err := f.svc.Create(f.doctorCtx(), in); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreate_SessionLink(t *testing.T) {
	f := newFixture()
	session := uuid.New()
	f.sessions[session] = []uuid.UUID{f.doctor}

	in := f.input("amoxicillin")
	in.SessionID = &session
	if _, err := f.svc.Create(f.doctorCtx(), in); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error without the patient, got %v", err)
	}
	f.sessions[session] = append(f.sessions[session], f.patient)
	if _, err := f.svc.Create(f.doctorCtx(), in); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGet_Access(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Create(f.doctorCtx(), f.input("amoxicillin"))
	id := res.Prescription.ID

	if _, err := f.svc.Get(asUser(f.patient, auth.RolePatient), id); err != nil {
		t.Errorf("expected patient access, got %v", err)
	}
	if _, err := f.svc.Get(asUser(uuid.New(), auth.RolePatient), id); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	got, err := f.svc.Get(f.doctorCtx(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Items) != 1 {
		t.Errorf("expected items, got %d", len(got.Items))
	}
}

func TestListByPatientAndDoctor(t *testing.T) {
	f := newFixture()
	f.svc.Create(f.doctorCtx(), f.input("amoxicillin"))
	f.svc.Create(f.doctorCtx(), f.input("paracetamol"))

	_, total, err := f.svc.ListByPatient(asUser(f.patient, auth.RolePatient), f.patient, "", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2, got %d", total)
	}
	if _, _, err := f.svc.ListByPatient(asUser(uuid.New(), auth.RolePatient), f.patient, "", 20, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, _, err := f.svc.ListByPatient(asUser(uuid.New(), auth.RoleDoctor), f.patient, "", 20, 0); err != nil {
		t.Errorf("expected other doctors to read the history, got %v", err)
	}
	if _, total, _ = f.svc.ListByDoctor(f.doctorCtx(), f.doctor, StatusActive, 20, 0); total != 2 {
		t.Errorf("expected 2, got %d", total)
	}
	if _, _, err := f.svc.ListByDoctor(asUser(uuid.New(), auth.RoleDoctor), f.doctor, "", 20, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, _, err := f.svc.ListByDoctor(f.doctorCtx(), f.doctor, "expired", 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCancelAndComplete(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Create(f.doctorCtx(), f.input("amoxicillin"))
	id := res.Prescription.ID

	if _, err := f.svc.Cancel(f.doctorCtx(), id, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Cancel(asUser(f.patient, auth.RolePatient), id, "no longer needed"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	p, err := f.svc.Cancel(f.doctorCtx(), id, "allergy reported")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusCancelled || p.Notes == nil || !strings.Contains(*p.Notes, "allergy reported") {
		t.Errorf("unexpected prescription: %+v", p)
	}
	if _, err := f.svc.Complete(f.doctorCtx(), id); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestRenderPDF(t *testing.T) {
	f := newFixture()
	in := f.input("Amoxicillin", "Paracetamol")
	notes := "Take with food."
	in.Notes = &notes
	instr := "Finish the whole course even if symptoms improve early on"
	in.Items[0].Instructions = &instr
	res, _ := f.svc.Create(f.doctorCtx(), in)

	data, p, err := f.svc.RenderPDF(asUser(f.patient, auth.RolePatient), res.Prescription.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != res.Prescription.ID {
		t.Errorf("unexpected prescription %s", p.ID)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("expected a PDF document, got %q", data[:min(len(data), 8)])
	}

	if _, _, err := f.svc.RenderPDF(asUser(uuid.New(), auth.RolePatient), res.Prescription.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}
