package consultation

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/media"
	"github.com/carelink/carelink/internal/platform/realtime"
	"github.com/carelink/carelink/pkg/pagination"
)

type mockSessionRepo struct {
	items        map[uuid.UUID]*Session
	participants *mockParticipantRepo
}

func (m *mockSessionRepo) Create(_ context.Context, s *Session) error {
	for _, existing := range m.items {
		if existing.AppointmentID == s.AppointmentID && !existing.Terminal() {
			return apperr.ErrConflict
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	cp.Participants = nil
	m.items[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("consultation session")
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Session, error) {
	return m.GetByID(ctx, id)
}

func (m *mockSessionRepo) GetOpenByAppointment(_ context.Context, appointmentID uuid.UUID) (*Session, error) {
	for _, s := range m.items {
		if s.AppointmentID == appointmentID && !s.Terminal() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("consultation session")
}

func (m *mockSessionRepo) Update(_ context.Context, s *Session) error {
	if _, ok := m.items[s.ID]; !ok {
		return apperr.NotFound("consultation session")
	}
	s.UpdatedAt = time.Now()
	cp := *s
	cp.Participants, cp.Recordings = nil, nil
	m.items[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) List(_ context.Context, f SessionFilter, limit, offset int) ([]*Session, int, error) {
	var result []*Session
	for _, s := range m.items {
		if f.UserID != nil {
			if _, err := m.participants.Get(context.Background(), s.ID, *f.UserID); err != nil {
				continue
			}
		}
		if f.AppointmentID != nil && s.AppointmentID != *f.AppointmentID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return pagination.Window(result, limit, offset), len(result), nil
}

type mockParticipantRepo struct {
	items map[uuid.UUID]*Participant
}

func (m *mockParticipantRepo) Create(_ context.Context, p *Participant) error {
	for _, existing := range m.items {
		if existing.SessionID == p.SessionID && existing.UserID == p.UserID {
			return apperr.ErrConflict
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockParticipantRepo) Get(_ context.Context, sessionID, userID uuid.UUID) (*Participant, error) {
	for _, p := range m.items {
		if p.SessionID == sessionID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("participant")
}

func (m *mockParticipantRepo) Update(_ context.Context, p *Participant) error {
	if _, ok := m.items[p.ID]; !ok {
		return apperr.NotFound("participant")
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockParticipantRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	var result []*Participant
	for _, p := range m.items {
		if p.SessionID == sessionID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

type mockRecordingRepo struct {
	items     map[uuid.UUID]*Recording
	updateErr error
}

func (m *mockRecordingRepo) Create(_ context.Context, r *Recording) error {
	for _, existing := range m.items {
		if existing.SessionID == r.SessionID && existing.Status == RecordingInProgress {
			return apperr.ErrConflict
		}
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRecordingRepo) GetByID(_ context.Context, id uuid.UUID) (*Recording, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("recording")
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Recording, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRecordingRepo) GetInProgress(_ context.Context, sessionID uuid.UUID) (*Recording, error) {
	for _, r := range m.items {
		if r.SessionID == sessionID && r.Status == RecordingInProgress {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("recording")
}

func (m *mockRecordingRepo) Update(_ context.Context, r *Recording) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.items[r.ID]; !ok {
		return apperr.NotFound("recording")
	}
	r.UpdatedAt = time.Now()
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockRecordingRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*Recording, error) {
	var result []*Recording
	for _, r := range m.items {
		if r.SessionID == sessionID {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

type mockAppointments struct {
	items     map[uuid.UUID]*appointment.Appointment
	completed []uuid.UUID
}

func (m *mockAppointments) add(mode, status string) *appointment.Appointment {
	a := &appointment.Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		DoctorID:        uuid.New(),
		ScheduledAt:     time.Now().Add(time.Hour),
		DurationMinutes: 30,
		Mode:            mode,
		Status:          status,
	}
	m.items[a.ID] = a
	return a
}

func (m *mockAppointments) Lookup(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointments) MarkCompleted(_ context.Context, id uuid.UUID) error {
	a, ok := m.items[id]
	if !ok {
		return apperr.NotFound("appointment")
	}
	if a.Status == appointment.StatusConfirmed {
		a.Status = appointment.StatusCompleted
	}
	m.completed = append(m.completed, id)
	return nil
}

type stubSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Request
}

func (n *recordingNotifier) Notify(_ context.Context, req notification.Request) (*notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	return &notification.Notification{ID: uuid.New(), UserID: req.UserID, Type: req.Type}, nil
}

// failingStore rejects every upload.
type failingStore struct {
	*media.InMemoryStore
}

func (failingStore) Upload(context.Context, media.Metadata, io.Reader) (*media.Metadata, error) {
	return nil, errors.New("media api returned 502")
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

// ofType returns the published events of eventType and how many of them
// were primary.
func (p *recordingPublisher) ofType(eventType string) (all, primary int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range p.events {
		if ev.Type != eventType {
			continue
		}
		all++
		if ev.Primary {
			primary++
		}
	}
	return all, primary
}
