package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/realtime"
	"github.com/carelink/carelink/pkg/pagination"
)

type mockRequestRepo struct {
	items map[uuid.UUID]*Request
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{items: make(map[uuid.UUID]*Request)}
}

func (m *mockRequestRepo) Create(_ context.Context, r *Request) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*Request, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment request")
	}
	cp := *r
	return &cp, nil
}

func (m *mockRequestRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRequestRepo) Update(_ context.Context, r *Request) error {
	if _, ok := m.items[r.ID]; !ok {
		return apperr.NotFound("appointment request")
	}
	r.UpdatedAt = time.Now()
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRequestRepo) List(_ context.Context, f RequestFilter, limit, offset int) ([]*Request, int, error) {
	var result []*Request
	for _, r := range m.items {
		if f.PatientID != nil && r.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Specialty != "" && !strings.EqualFold(r.Specialty, f.Specialty) {
			continue
		}
		if f.DoctorID != nil {
			match := (r.DoctorID != nil && *r.DoctorID == *f.DoctorID) ||
				(r.MatchedDoctorID != nil && *r.MatchedDoctorID == *f.DoctorID)
			if !match {
				continue
			}
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return pagination.Window(result, limit, offset), len(result), nil
}

type mockAppointmentRepo struct {
	items map[uuid.UUID]*Appointment
	// calls records LockDoctorSchedule and HasConflict in order.
	calls []string
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{items: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var result []*Appointment
	for _, a := range m.items {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	return pagination.Window(result, limit, offset), len(result), nil
}

func (m *mockAppointmentRepo) LockDoctorSchedule(_ context.Context, doctorID uuid.UUID) error {
	m.calls = append(m.calls, "lock "+doctorID.String())
	return nil
}

func (m *mockAppointmentRepo) HasConflict(_ context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (bool, error) {
	m.calls = append(m.calls, "conflict "+doctorID.String())
	for _, a := range m.items {
		if a.DoctorID != doctorID || a.Status != StatusConfirmed {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAppointmentRepo) DueForReminder(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	var result []*Appointment
	for _, a := range m.items {
		if a.Status == StatusConfirmed && a.ReminderSentAt == nil &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockAppointmentRepo) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) error {
	a, ok := m.items[id]
	if !ok {
		return apperr.NotFound("appointment")
	}
	a.ReminderSentAt = &at
	return nil
}

type mockDirectory struct {
	doctors  map[uuid.UUID]*directory.Doctor
	contacts map[uuid.UUID]*directory.Contact
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		doctors:  make(map[uuid.UUID]*directory.Doctor),
		contacts: make(map[uuid.UUID]*directory.Contact),
	}
}

func (m *mockDirectory) addDoctor(name, specialty string) *directory.Doctor {
	d := &directory.Doctor{ID: uuid.New(), FullName: name, Email: strings.ToLower(strings.ReplaceAll(name, " ", "")) + "@example.com", Specialty: specialty, Active: true}
	m.doctors[d.ID] = d
	m.contacts[d.ID] = &directory.Contact{ID: d.ID, Name: d.FullName, Email: d.Email, Role: "doctor"}
	return d
}

func (m *mockDirectory) addPatient(name string) uuid.UUID {
	id := uuid.New()
	m.contacts[id] = &directory.Contact{ID: id, Name: name, Email: "patient@example.com", Role: "patient"}
	return id
}

func (m *mockDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor")
	}
	return d, nil
}

func (m *mockDirectory) ActiveDoctorsBySpecialty(_ context.Context, specialty string) ([]*directory.Doctor, error) {
	var result []*directory.Doctor
	for _, d := range m.doctors {
		if d.Active && strings.EqualFold(d.Specialty, specialty) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FullName < result[j].FullName })
	return result, nil
}

func (m *mockDirectory) Contact(_ context.Context, id uuid.UUID) (*directory.Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return c, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Request
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, req notification.Request) (*notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.sent = append(n.sent, req)
	return &notification.Notification{ID: uuid.New(), UserID: req.UserID, Type: req.Type}, nil
}

func (n *recordingNotifier) to(userID uuid.UUID) []notification.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.Request
	for _, r := range n.sent {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type mockScheduler struct {
	scheduled map[uuid.UUID]uuid.UUID
	cancelled map[uuid.UUID]string
	announced []uuid.UUID
	fail      bool
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{scheduled: make(map[uuid.UUID]uuid.UUID), cancelled: make(map[uuid.UUID]string)}
}

func (m *mockScheduler) ScheduleForAppointment(_ context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	if m.fail {
		return uuid.Nil, errors.New("consultation store unavailable")
	}
	if _, ok := m.scheduled[appointmentID]; ok {
		return uuid.Nil, apperr.ErrConflict
	}
	id := uuid.New()
	m.scheduled[appointmentID] = id
	return id, nil
}

func (m *mockScheduler) CancelForAppointment(_ context.Context, appointmentID uuid.UUID, reason string) (uuid.UUID, error) {
	id, ok := m.scheduled[appointmentID]
	if !ok {
		return uuid.Nil, nil
	}
	if _, done := m.cancelled[appointmentID]; done {
		return uuid.Nil, nil
	}
	m.cancelled[appointmentID] = reason
	return id, nil
}

func (m *mockScheduler) AnnounceCancelled(_ context.Context, sessionID uuid.UUID) {
	m.announced = append(m.announced, sessionID)
}

// failingCancelScheduler fails the surrounding transaction after the
// consultation has been cancelled.
type failingCancelScheduler struct {
	*mockScheduler
}

func (m failingCancelScheduler) CancelForAppointment(ctx context.Context, appointmentID uuid.UUID, reason string) (uuid.UUID, error) {
	if _, err := m.mockScheduler.CancelForAppointment(ctx, appointmentID, reason); err != nil {
		return uuid.Nil, err
	}
	return uuid.Nil, errors.New("consultation store unavailable")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}
