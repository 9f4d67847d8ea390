package consultation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/media"
	"github.com/carelink/carelink/internal/platform/realtime"
	"github.com/carelink/carelink/internal/platform/summarizer"
)

type fixture struct {
	svc          *Service
	sessions     *mockSessionRepo
	participants *mockParticipantRepo
	recordings   *mockRecordingRepo
	appts        *mockAppointments
	store        *media.InMemoryStore
	sum          *stubSummarizer
	notifier     *recordingNotifier
	events       *recordingPublisher
}

func newFixture() *fixture {
	participants := &mockParticipantRepo{items: make(map[uuid.UUID]*Participant)}
	f := &fixture{
		sessions:     &mockSessionRepo{items: make(map[uuid.UUID]*Session), participants: participants},
		participants: participants,
		recordings:   &mockRecordingRepo{items: make(map[uuid.UUID]*Recording)},
		appts:        &mockAppointments{items: make(map[uuid.UUID]*appointment.Appointment)},
		store:        media.NewInMemoryStore("http://media.test"),
		sum:          &stubSummarizer{summary: "Stable angina; continue beta blocker."},
		notifier:     &recordingNotifier{},
		events:       &recordingPublisher{},
	}
	f.svc = NewService(f.sessions, f.participants, f.recordings, f.appts, f.store, f.sum,
		f.notifier, f.events, db.NopTxRunner{}, zerolog.Nop())
	return f
}

func asUser(id uuid.UUID, role string) context.Context {
	return auth.WithUser(context.Background(), id.String(), []string{role})
}

func asAdmin() context.Context {
	return auth.WithUser(context.Background(), uuid.New().String(), []string{auth.RoleAdmin})
}

// scheduled returns a scheduled session with contexts for its doctor and patient.
func (f *fixture) scheduled(t *testing.T) (*Session, context.Context, context.Context) {
	t.Helper()
	appt := f.appts.add(appointment.ModeVideo, appointment.StatusConfirmed)
	doctor := asUser(appt.DoctorID, auth.RoleDoctor)
	sess, err := f.svc.CreateForAppointment(doctor, appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sess, doctor, asUser(appt.PatientID, auth.RolePatient)
}

func (f *fixture) active(t *testing.T) (*Session, context.Context, context.Context) {
	t.Helper()
	sess, doctor, patient := f.scheduled(t)
	sess, err := f.svc.Start(doctor, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sess, doctor, patient
}

func TestCreateForAppointment(t *testing.T) {
	f := newFixture()
	sess, _, _ := f.scheduled(t)

	if sess.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", sess.Status)
	}
	if !strings.HasPrefix(sess.RoomName, "cl-") || len(sess.RoomName) != 19 {
		t.Errorf("unexpected room name %q", sess.RoomName)
	}
	if len(sess.Participants) != 2 {
		t.Fatalf("expected doctor and patient to be invited, got %d", len(sess.Participants))
	}
	for _, p := range sess.Participants {
		if p.Status != ParticipantInvited {
			t.Errorf("expected invited, got %s", p.Status)
		}
	}
}

func TestCreateForAppointment_Conflict(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.scheduled(t)

	_, err := f.svc.CreateForAppointment(doctor, sess.AppointmentID)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestCreateForAppointment_AfterCancelAllowed(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.scheduled(t)
	if _, err := f.svc.Cancel(doctor, sess.ID, "camera broken"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.CreateForAppointment(doctor, sess.AppointmentID); err != nil {
		t.Errorf("expected a new session after cancel, got %v", err)
	}
}

func TestCreateForAppointment_Rules(t *testing.T) {
	f := newFixture()
	cancelled := f.appts.add(appointment.ModeVideo, appointment.StatusCancelled)
	inPerson := f.appts.add(appointment.ModeInPerson, appointment.StatusConfirmed)
	mine := f.appts.add(appointment.ModeVideo, appointment.StatusConfirmed)

	if _, err := f.svc.CreateForAppointment(asAdmin(), cancelled.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for cancelled appointment, got %v", err)
	}
	if _, err := f.svc.CreateForAppointment(asAdmin(), inPerson.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for in-person appointment, got %v", err)
	}
	if _, err := f.svc.CreateForAppointment(asUser(uuid.New(), auth.RoleDoctor), mine.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another doctor, got %v", err)
	}
}

func TestScheduleAndCancelForAppointment(t *testing.T) {
	f := newFixture()
	appt := f.appts.add(appointment.ModeVideo, appointment.StatusConfirmed)

	id, err := f.svc.ScheduleForAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancelled, err := f.svc.CancelForAppointment(context.Background(), appt.ID, "appointment cancelled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled != id {
		t.Errorf("cancelled = %s, want %s", cancelled, id)
	}
	got := f.sessions.items[id]
	if got.Status != StatusCancelled || got.CancelReason == nil || *got.CancelReason != "appointment cancelled" {
		t.Errorf("unexpected session: %+v", got)
	}
	if n, _ := f.events.ofType(realtime.EventSessionCancelled); n != 0 {
		t.Errorf("expected no events before the caller commits, got %d", n)
	}

	again, err := f.svc.CancelForAppointment(context.Background(), appt.ID, "again")
	if err != nil {
		t.Errorf("expected no-op without an open session, got %v", err)
	}
	if again != uuid.Nil {
		t.Errorf("expected nil id without an open session, got %s", again)
	}
}

func TestAnnounceCancelled(t *testing.T) {
	f := newFixture()
	appt := f.appts.add(appointment.ModeVideo, appointment.StatusConfirmed)
	if _, err := f.svc.ScheduleForAppointment(context.Background(), appt.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, err := f.svc.CancelForAppointment(context.Background(), appt.ID, "appointment cancelled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.svc.AnnounceCancelled(context.Background(), id)
	all, primary := f.events.ofType(realtime.EventSessionCancelled)
	if all == 0 || primary != 1 {
		t.Errorf("expected one primary cancellation, got %d events with %d primary", all, primary)
	}

	// Sessions that are not cancelled are not announced.
	open, _, _ := f.scheduled(t)
	f.svc.AnnounceCancelled(context.Background(), open.ID)
	f.svc.AnnounceCancelled(context.Background(), uuid.New())
	if again, _ := f.events.ofType(realtime.EventSessionCancelled); again != all {
		t.Errorf("expected no further events, got %d", again-all)
	}
}

func TestStart_PublishesOnePrimaryEvent(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.scheduled(t)

	if _, err := f.svc.Start(doctor, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, primary := f.events.ofType(realtime.EventSessionStarted)
	if all < 2 {
		t.Errorf("expected the room and participant topics to be told, got %d events", all)
	}
	if primary != 1 {
		t.Errorf("expected exactly one primary event, got %d", primary)
	}
}

func TestStart(t *testing.T) {
	f := newFixture()
	sess, doctor, patient := f.scheduled(t)

	if _, err := f.svc.Start(patient, sess.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected patients not to start sessions, got %v", err)
	}
	got, err := f.svc.Start(doctor, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusActive || got.StartedAt == nil {
		t.Errorf("unexpected session: %+v", got)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Type != notification.TypeConsultationStarted {
		t.Errorf("expected patient to be told, got %+v", f.notifier.sent)
	}
	if _, err := f.svc.Start(doctor, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestEnd(t *testing.T) {
	f := newFixture()
	sess, doctor, patient := f.active(t)

	if _, err := f.svc.Join(patient, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := f.svc.StartRecording(doctor, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.svc.End(doctor, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted || got.EndedAt == nil {
		t.Errorf("unexpected session: %+v", got)
	}
	p, _ := f.participants.Get(context.Background(), sess.ID, auth.UserUUIDFromContext(patient))
	if p.Status != ParticipantLeft || p.LeftAt == nil {
		t.Errorf("expected patient to have left, got %+v", p)
	}
	if r := f.recordings.items[rec.ID]; r.Status != RecordingProcessing || r.StoppedAt == nil {
		t.Errorf("expected recording to be processing, got %+v", r)
	}
	if f.appts.items[sess.AppointmentID].Status != appointment.StatusCompleted {
		t.Error("expected appointment to complete")
	}
}

func TestEnd_ScheduledSessionCannotEnd(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.scheduled(t)

	if _, err := f.svc.End(doctor, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture()
	sess, _, patient := f.active(t)

	if _, err := f.svc.Cancel(patient, sess.ID, " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Join(patient, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := f.svc.Cancel(patient, sess.ID, "connection lost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled || got.EndedAt == nil {
		t.Errorf("unexpected session: %+v", got)
	}
	if _, err := f.svc.Cancel(patient, sess.ID, "again"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
	if _, err := f.svc.Join(patient, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected join to fail after cancel, got %v", err)
	}
}

func TestParticipantLifecycle(t *testing.T) {
	f := newFixture()
	sess, _, patient := f.scheduled(t)

	if _, err := f.svc.Leave(patient, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected leave before join to fail, got %v", err)
	}
	p, err := f.svc.Join(patient, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != ParticipantJoined || p.JoinedAt == nil {
		t.Errorf("unexpected participant: %+v", p)
	}
	if p, err = f.svc.Leave(patient, sess.ID); err != nil || p.Status != ParticipantLeft {
		t.Fatalf("expected left, got %+v %v", p, err)
	}
	if p, err = f.svc.Join(patient, sess.ID); err != nil || p.Status != ParticipantJoined || p.LeftAt != nil {
		t.Fatalf("expected rejoin, got %+v %v", p, err)
	}
	if _, err := f.svc.Decline(patient, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected decline after join to fail, got %v", err)
	}
	if _, err := f.svc.Join(asUser(uuid.New(), auth.RolePatient), sess.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected strangers to be refused, got %v", err)
	}
}

func TestDecline(t *testing.T) {
	f := newFixture()
	sess, _, patient := f.scheduled(t)

	p, err := f.svc.Decline(patient, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != ParticipantDeclined {
		t.Errorf("expected declined, got %s", p.Status)
	}
	if _, err := f.svc.Join(patient, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected declined participants not to join, got %v", err)
	}
}

func TestInvite(t *testing.T) {
	f := newFixture()
	sess, doctor, patient := f.scheduled(t)
	observer := uuid.New()

	if _, err := f.svc.Invite(patient, sess.ID, observer, RoleObserver); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected patients not to invite, got %v", err)
	}
	if _, err := f.svc.Invite(doctor, sess.ID, observer, "surgeon"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for role, got %v", err)
	}
	p, err := f.svc.Invite(doctor, sess.ID, observer, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != RoleObserver || p.Status != ParticipantInvited {
		t.Errorf("unexpected participant: %+v", p)
	}
	if _, err := f.svc.Invite(doctor, sess.ID, observer, RoleObserver); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on duplicate invite, got %v", err)
	}
	if !f.svc.IsParticipant(context.Background(), sess.ID, observer) {
		t.Error("expected observer to be a participant")
	}
	if f.svc.IsParticipant(context.Background(), sess.ID, uuid.New()) {
		t.Error("expected stranger not to be a participant")
	}
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.active(t)

	rec, err := f.svc.StartRecording(doctor, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.StartRecording(doctor, sess.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected one recording at a time, got %v", err)
	}
	if _, err := f.svc.UploadRecording(doctor, rec.ID, "visit.webm", "video/webm", strings.NewReader("data")); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected upload before stop to fail, got %v", err)
	}

	if rec, err = f.svc.StopRecording(doctor, rec.ID); err != nil || rec.Status != RecordingProcessing {
		t.Fatalf("expected processing, got %+v %v", rec, err)
	}
	rec, err = f.svc.UploadRecording(doctor, rec.ID, "visit.webm", "video/webm; codecs=vp8", strings.NewReader("webm-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != RecordingCompleted || rec.MediaID == nil || rec.MediaURL == nil {
		t.Fatalf("unexpected recording: %+v", rec)
	}
	if f.store.Len() != 1 {
		t.Errorf("expected one stored object, got %d", f.store.Len())
	}

	if rec, err = f.svc.DeleteRecording(doctor, rec.ID); err != nil || rec.Status != RecordingDeleted {
		t.Fatalf("expected deleted, got %+v %v", rec, err)
	}
	if f.store.Len() != 0 {
		t.Error("expected media to be removed")
	}
	if _, err := f.svc.DeleteRecording(doctor, rec.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestStartRecording_RequiresActiveSession(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.scheduled(t)

	if _, err := f.svc.StartRecording(doctor, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestUploadRecording_Failure(t *testing.T) {
	f := newFixture()
	f.svc.store = failingStore{f.store}
	sess, doctor, _ := f.active(t)
	rec, _ := f.svc.StartRecording(doctor, sess.ID)
	f.svc.StopRecording(doctor, rec.ID)

	got, err := f.svc.UploadRecording(doctor, rec.ID, "visit.webm", "video/webm", strings.NewReader("x"))
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got == nil || got.Status != RecordingFailed || got.FailureReason == nil {
		t.Fatalf("expected failed recording with reason, got %+v", got)
	}
	if !strings.Contains(*got.FailureReason, "502") {
		t.Errorf("unexpected failure reason %q", *got.FailureReason)
	}
}

func TestUploadRecording_RemovesMediaWhenUpdateFails(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.active(t)
	rec, _ := f.svc.StartRecording(doctor, sess.ID)
	f.svc.StopRecording(doctor, rec.ID)
	f.recordings.updateErr = errors.New("connection reset")

	if _, err := f.svc.UploadRecording(doctor, rec.ID, "visit.webm", "video/webm", strings.NewReader("webm-bytes")); err == nil {
		t.Fatal("expected error when the recording cannot be updated")
	}
	if f.store.Len() != 0 {
		t.Errorf("expected uploaded media to be removed, %d objects left", f.store.Len())
	}
}

func TestUploadRecording_BadContentType(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.active(t)
	rec, _ := f.svc.StartRecording(doctor, sess.ID)
	f.svc.StopRecording(doctor, rec.ID)

	_, err := f.svc.UploadRecording(doctor, rec.ID, "notes.txt", "text/plain", strings.NewReader("x"))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.recordings.items[rec.ID].Status != RecordingProcessing {
		t.Error("expected recording to stay processing")
	}
}

func (f *fixture) completedRecording(t *testing.T) (*Recording, context.Context) {
	t.Helper()
	sess, doctor, _ := f.active(t)
	rec, _ := f.svc.StartRecording(doctor, sess.ID)
	f.svc.StopRecording(doctor, rec.ID)
	rec, err := f.svc.UploadRecording(doctor, rec.ID, "visit.mp4", "video/mp4", strings.NewReader("mp4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec, doctor
}

func TestSummarizeRecording(t *testing.T) {
	f := newFixture()
	rec, doctor := f.completedRecording(t)

	if _, err := f.svc.SummarizeRecording(doctor, rec.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error without transcript, got %v", err)
	}
	if _, err := f.svc.SetTranscript(doctor, rec.ID, "Doctor: how is the chest pain? Patient: better."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := f.svc.SummarizeRecording(doctor, rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary == nil || *got.Summary != f.sum.summary {
		t.Errorf("unexpected summary: %v", got.Summary)
	}
	sess := f.sessions.items[rec.SessionID]
	if sess.Summary == nil || *sess.Summary != f.sum.summary {
		t.Error("expected summary to be copied to the session")
	}
}

func TestSummarizeRecording_Disabled(t *testing.T) {
	f := newFixture()
	rec, doctor := f.completedRecording(t)
	f.svc.SetTranscript(doctor, rec.ID, "transcript")
	f.svc.summarizer = summarizer.Disabled{}

	_, err := f.svc.SummarizeRecording(doctor, rec.ID)
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestSummarizeRecording_NotCompleted(t *testing.T) {
	f := newFixture()
	sess, doctor, _ := f.active(t)
	rec, _ := f.svc.StartRecording(doctor, sess.ID)

	if _, err := f.svc.SummarizeRecording(doctor, rec.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
	if f.sum.calls != 0 {
		t.Error("expected summarizer not to be called")
	}
}

func TestGet_ParticipantsOnly(t *testing.T) {
	f := newFixture()
	sess, _, patient := f.scheduled(t)

	got, err := f.svc.Get(patient, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Participants) != 2 {
		t.Errorf("expected 2 participants, got %d", len(got.Participants))
	}
	if _, err := f.svc.Get(asUser(uuid.New(), auth.RoleDoctor), sess.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Get(asAdmin(), sess.ID); err != nil {
		t.Errorf("expected admin access, got %v", err)
	}
}

func TestList_ScopedToCaller(t *testing.T) {
	f := newFixture()
	_, _, patient := f.scheduled(t)
	f.scheduled(t)

	_, total, err := f.svc.List(patient, SessionFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1, got %d", total)
	}
	if _, total, _ = f.svc.List(asAdmin(), SessionFilter{}, 20, 0); total != 2 {
		t.Errorf("expected admin to see 2, got %d", total)
	}
	if _, _, err := f.svc.List(patient, SessionFilter{Status: "paused"}, 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTransitionTables(t *testing.T) {
	tests := []struct {
		table    map[string][]string
		from, to string
		want     bool
	}{
		{sessionTransitions, StatusScheduled, StatusActive, true},
		{sessionTransitions, StatusScheduled, StatusCompleted, false},
		{sessionTransitions, StatusCompleted, StatusCancelled, false},
		{participantTransitions, ParticipantLeft, ParticipantJoined, true},
		{participantTransitions, ParticipantDeclined, ParticipantJoined, false},
		{recordingTransitions, RecordingFailed, RecordingDeleted, true},
		{recordingTransitions, RecordingCompleted, RecordingProcessing, false},
		{recordingTransitions, RecordingDeleted, RecordingDeleted, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.table, tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestRoomNamesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := newRoomName()
		if seen[name] {
			t.Fatalf("duplicate room name %s", name)
		}
		seen[name] = true
	}
}
