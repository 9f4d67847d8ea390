package consultation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

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

// Appointments is the part of the appointment service consultations need.
type Appointments interface {
	Lookup(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}

type Notifier interface {
	Notify(ctx context.Context, req notification.Request) (*notification.Notification, error)
}

type Service struct {
	sessions     SessionRepository
	participants ParticipantRepository
	recordings   RecordingRepository
	appointments Appointments
	store        media.Store
	summarizer   summarizer.Summarizer
	notifier     Notifier
	publisher    realtime.Publisher
	tx           db.TxRunner
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	sessions SessionRepository,
	participants ParticipantRepository,
	recordings RecordingRepository,
	appointments Appointments,
	store media.Store,
	sum summarizer.Summarizer,
	notifier Notifier,
	publisher realtime.Publisher,
	tx db.TxRunner,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessions:     sessions,
		participants: participants,
		recordings:   recordings,
		appointments: appointments,
		store:        store,
		summarizer:   sum,
		notifier:     notifier,
		publisher:    publisher,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
	}
}

func newRoomName() string {
	return "cl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// -- Sessions --

// CreateForAppointment opens a consultation for a confirmed appointment.
// Only the appointment's doctor or an administrator may do this.
func (s *Service) CreateForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Session, error) {
	var sess *Session
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		appt, err := s.appointments.Lookup(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !auth.IsSelfOrAdmin(ctx, appt.DoctorID) {
			return apperr.ErrForbidden
		}
		sess, err = s.create(ctx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ScheduleForAppointment opens a consultation on behalf of an already
// authorized caller and returns its ID.
func (s *Service) ScheduleForAppointment(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		appt, err := s.appointments.Lookup(ctx, appointmentID)
		if err != nil {
			return err
		}
		sess, err := s.create(ctx, appt)
		if err != nil {
			return err
		}
		id = sess.ID
		return nil
	})
	return id, err
}

func (s *Service) create(ctx context.Context, appt *appointment.Appointment) (*Session, error) {
	if appt.Status != appointment.StatusConfirmed {
		return nil, apperr.Validation("appointment is %s, consultations need a confirmed appointment", appt.Status)
	}
	if appt.Mode != appointment.ModeVideo {
		return nil, apperr.Validation("appointment is not a video visit")
	}
	existing, err := s.sessions.GetOpenByAppointment(ctx, appt.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: appointment already has %s consultation %s", apperr.ErrConflict, existing.Status, existing.ID)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	sess := &Session{AppointmentID: appt.ID, RoomName: newRoomName(), Status: StatusScheduled}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	for _, p := range []*Participant{
		{SessionID: sess.ID, UserID: appt.DoctorID, Role: RoleDoctor, Status: ParticipantInvited},
		{SessionID: sess.ID, UserID: appt.PatientID, Role: RolePatient, Status: ParticipantInvited},
	} {
		if err := s.participants.Create(ctx, p); err != nil {
			return nil, err
		}
		sess.Participants = append(sess.Participants, p)
	}
	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("appointment_id", appt.ID.String()).
		Str("room", sess.RoomName).
		Msg("consultation scheduled")
	return sess, nil
}

// CancelForAppointment cancels the open consultation of an appointment, if
// any, without access checks. It returns the cancelled session's ID, or
// uuid.Nil when there was nothing to cancel. Nothing is published: the
// caller may still be inside a transaction and announces the cancellation
// with AnnounceCancelled once it has committed.
func (s *Service) CancelForAppointment(ctx context.Context, appointmentID uuid.UUID, reason string) (uuid.UUID, error) {
	var cancelled uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		open, err := s.sessions.GetOpenByAppointment(ctx, appointmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.cancel(ctx, open, reason); err != nil {
			return err
		}
		cancelled = open.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return cancelled, nil
}

// AnnounceCancelled publishes the cancellation of a session cancelled by
// CancelForAppointment.
func (s *Service) AnnounceCancelled(ctx context.Context, sessionID uuid.UUID) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("load cancelled session")
		return
	}
	if sess.Status != StatusCancelled {
		return
	}
	s.publishSession(ctx, realtime.EventSessionCancelled, sess)
}

// Start moves a scheduled consultation to active.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess *Session
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if sess, err = s.lockSession(ctx, id, RoleDoctor); err != nil {
			return err
		}
		if !canTransition(sessionTransitions, sess.Status, StatusActive) {
			return apperr.Transition("consultation", sess.Status, StatusActive)
		}
		now := s.now()
		sess.Status = StatusActive
		sess.StartedAt = &now
		return s.sessions.Update(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.publishSession(ctx, realtime.EventSessionStarted, sess)
	participants, err := s.participants.ListBySession(ctx, sess.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("list participants")
		return sess, nil
	}
	for _, p := range participants {
		if p.UserID == auth.UserUUIDFromContext(ctx) || p.Status == ParticipantDeclined {
			continue
		}
		s.notify(ctx, notification.Request{
			UserID: p.UserID,
			Type:   notification.TypeConsultationStarted,
			Title:  "Your consultation has started",
			Body:   "The video room is open. Join when you are ready.",
			Link:   "/consultations/" + sess.ID.String(),
		})
	}
	return sess, nil
}

// End completes an active consultation. Joined participants leave, an
// in-progress recording goes to processing and the appointment completes.
func (s *Service) End(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess *Session
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if sess, err = s.lockSession(ctx, id, RoleDoctor); err != nil {
			return err
		}
		if !canTransition(sessionTransitions, sess.Status, StatusCompleted) {
			return apperr.Transition("consultation", sess.Status, StatusCompleted)
		}
		now := s.now()
		sess.Status = StatusCompleted
		sess.EndedAt = &now
		if err := s.sessions.Update(ctx, sess); err != nil {
			return err
		}
		if err := s.wrapUp(ctx, sess.ID); err != nil {
			return err
		}
		return s.appointments.MarkCompleted(ctx, sess.AppointmentID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("session_id", sess.ID.String()).Msg("consultation ended")
	s.publishSession(ctx, realtime.EventSessionEnded, sess)
	return sess, nil
}

// Cancel stops a scheduled or active consultation. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Session, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	var sess *Session
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if sess, err = s.lockSession(ctx, id, RoleDoctor, RolePatient); err != nil {
			return err
		}
		return s.cancel(ctx, sess, reason)
	})
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, realtime.EventSessionCancelled, sess)
	return sess, nil
}

func (s *Service) cancel(ctx context.Context, sess *Session, reason string) error {
	if !canTransition(sessionTransitions, sess.Status, StatusCancelled) {
		return apperr.Transition("consultation", sess.Status, StatusCancelled)
	}
	now := s.now()
	sess.Status = StatusCancelled
	sess.CancelReason = &reason
	if sess.StartedAt != nil {
		sess.EndedAt = &now
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return err
	}
	return s.wrapUp(ctx, sess.ID)
}

// wrapUp moves joined participants to left and stops any recording.
func (s *Service) wrapUp(ctx context.Context, sessionID uuid.UUID) error {
	now := s.now()
	participants, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.Status != ParticipantJoined {
			continue
		}
		p.Status = ParticipantLeft
		p.LeftAt = &now
		if err := s.participants.Update(ctx, p); err != nil {
			return err
		}
	}

	rec, err := s.recordings.GetInProgress(ctx, sessionID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.Status = RecordingProcessing
	rec.StoppedAt = &now
	return s.recordings.Update(ctx, rec)
}

// Get returns a session with its participants and recordings.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, sess.ID); err != nil {
		return nil, err
	}
	if sess.Participants, err = s.participants.ListBySession(ctx, sess.ID); err != nil {
		return nil, err
	}
	if sess.Recordings, err = s.recordings.ListBySession(ctx, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns sessions. Non-admin callers only see sessions they take
// part in.
func (s *Service) List(ctx context.Context, f SessionFilter, limit, offset int) ([]*Session, int, error) {
	if f.Status != "" && !validSessionStatuses[f.Status] {
		return nil, 0, apperr.Validation("invalid status: %s", f.Status)
	}
	if !auth.IsAdmin(ctx) {
		self := auth.UserUUIDFromContext(ctx)
		f.UserID = &self
	}
	return s.sessions.List(ctx, f, limit, offset)
}

// IsParticipant reports whether userID was invited to the session. It
// backs subscription checks for session topics.
func (s *Service) IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) bool {
	_, err := s.participants.Get(ctx, sessionID, userID)
	return err == nil
}

// -- Participants --

// Invite adds a participant. Only the session's doctor or an admin may
// invite, and only before the session ends.
func (s *Service) Invite(ctx context.Context, sessionID, userID uuid.UUID, role string) (*Participant, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}
	if role == "" {
		role = RoleObserver
	}
	if !validRoles[role] {
		return nil, apperr.Validation("role must be doctor, patient or observer")
	}
	var p *Participant
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sess, err := s.lockSession(ctx, sessionID, RoleDoctor)
		if err != nil {
			return err
		}
		if sess.Terminal() {
			return apperr.Transition("consultation", sess.Status, "invite")
		}
		p = &Participant{SessionID: sessionID, UserID: userID, Role: role, Status: ParticipantInvited}
		return s.participants.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.publishParticipant(ctx, p)
	s.notify(ctx, notification.Request{
		UserID: userID,
		Type:   notification.TypeConsultationStarted,
		Title:  "Consultation invitation",
		Body:   "You have been invited to a video consultation.",
		Link:   "/consultations/" + sessionID.String(),
	})
	return p, nil
}

// Join admits the caller to the room. Rejoining after leaving is allowed.
func (s *Service) Join(ctx context.Context, sessionID uuid.UUID) (*Participant, error) {
	return s.moveParticipant(ctx, sessionID, ParticipantJoined, func(sess *Session, p *Participant) error {
		if sess.Terminal() {
			return apperr.Transition("consultation", sess.Status, "join")
		}
		now := s.now()
		p.JoinedAt = &now
		p.LeftAt = nil
		return nil
	})
}

func (s *Service) Decline(ctx context.Context, sessionID uuid.UUID) (*Participant, error) {
	return s.moveParticipant(ctx, sessionID, ParticipantDeclined, func(*Session, *Participant) error {
		return nil
	})
}

func (s *Service) Leave(ctx context.Context, sessionID uuid.UUID) (*Participant, error) {
	return s.moveParticipant(ctx, sessionID, ParticipantLeft, func(_ *Session, p *Participant) error {
		now := s.now()
		p.LeftAt = &now
		return nil
	})
}

func (s *Service) moveParticipant(ctx context.Context, sessionID uuid.UUID, to string, fn func(*Session, *Participant) error) (*Participant, error) {
	userID := auth.UserUUIDFromContext(ctx)
	var p *Participant
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sess, err := s.sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		p, err = s.participants.Get(ctx, sessionID, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrForbidden
		}
		if err != nil {
			return err
		}
		if !canTransition(participantTransitions, p.Status, to) {
			return apperr.Transition("participant", p.Status, to)
		}
		if err := fn(sess, p); err != nil {
			return err
		}
		p.Status = to
		return s.participants.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.publishParticipant(ctx, p)
	return p, nil
}

// -- Recordings --

// StartRecording begins capturing an active session. A session records
// one stream at a time.
func (s *Service) StartRecording(ctx context.Context, sessionID uuid.UUID) (*Recording, error) {
	var rec *Recording
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sess, err := s.lockSession(ctx, sessionID, RoleDoctor)
		if err != nil {
			return err
		}
		if sess.Status != StatusActive {
			return apperr.Transition("consultation", sess.Status, "recording")
		}
		existing, err := s.recordings.GetInProgress(ctx, sessionID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: recording %s is already in progress", apperr.ErrConflict, existing.ID)
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}
		rec = &Recording{SessionID: sessionID, Status: RecordingInProgress, StartedAt: s.now()}
		return s.recordings.Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.publishRecording(ctx, rec)
	return rec, nil
}

func (s *Service) StopRecording(ctx context.Context, recordingID uuid.UUID) (*Recording, error) {
	return s.moveRecording(ctx, recordingID, RecordingProcessing, func(rec *Recording) error {
		now := s.now()
		rec.StoppedAt = &now
		return nil
	})
}

// UploadRecording stores the media of a processing recording. The
// recording completes on success; a storage failure marks it failed and
// keeps the reason.
func (s *Service) UploadRecording(ctx context.Context, recordingID uuid.UUID, fileName, contentType string, content io.Reader) (*Recording, error) {
	meta := media.Metadata{
		FileName:    fileName,
		ContentType: contentType,
		Category:    media.CategoryRecording,
		OwnerID:     auth.UserIDFromContext(ctx),
	}
	if err := media.Validate(meta); err != nil {
		return nil, apperr.Validation("%v", err)
	}

	rec, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, rec.SessionID, RoleDoctor); err != nil {
		return nil, err
	}
	if rec.Status != RecordingProcessing {
		return nil, apperr.Transition("recording", rec.Status, RecordingCompleted)
	}

	stored, uploadErr := s.store.Upload(ctx, meta, content)
	to := RecordingCompleted
	if uploadErr != nil {
		to = RecordingFailed
	}
	rec, err = s.moveRecording(ctx, recordingID, to, func(rec *Recording) error {
		if uploadErr != nil {
			reason := uploadErr.Error()
			rec.FailureReason = &reason
			return nil
		}
		rec.MediaID = &stored.ID
		rec.MediaURL = &stored.URL
		rec.FailureReason = nil
		return nil
	})
	if err != nil {
		if uploadErr == nil {
			s.discardUpload(ctx, recordingID, stored.ID)
		}
		return nil, err
	}
	if uploadErr != nil {
		s.logger.Error().Err(uploadErr).Str("recording_id", recordingID.String()).Msg("recording upload failed")
		return rec, fmt.Errorf("%w: upload recording: %v", apperr.ErrUnavailable, uploadErr)
	}
	return rec, nil
}

// discardUpload removes media whose recording could not be updated to
// point at it.
func (s *Service) discardUpload(ctx context.Context, recordingID uuid.UUID, mediaID string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), mediaID); err != nil && !errors.Is(err, media.ErrObjectNotFound) {
		s.logger.Error().Err(err).
			Str("recording_id", recordingID.String()).
			Str("media_id", mediaID).
			Msg("remove orphaned recording media")
	}
}

// DeleteRecording removes the stored media and marks the recording deleted.
func (s *Service) DeleteRecording(ctx context.Context, recordingID uuid.UUID) (*Recording, error) {
	rec, err := s.moveRecording(ctx, recordingID, RecordingDeleted, func(rec *Recording) error {
		if rec.MediaID == nil {
			return nil
		}
		if err := s.store.Delete(ctx, *rec.MediaID); err != nil && !errors.Is(err, media.ErrObjectNotFound) {
			return fmt.Errorf("%w: delete recording media: %v", apperr.ErrUnavailable, err)
		}
		rec.MediaURL = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetTranscript attaches the transcript produced for a recording.
func (s *Service) SetTranscript(ctx context.Context, recordingID uuid.UUID, transcript string) (*Recording, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, apperr.Validation("transcript is required")
	}
	var rec *Recording
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if rec, err = s.recordings.GetForUpdate(ctx, recordingID); err != nil {
			return err
		}
		if _, err := s.authorize(ctx, rec.SessionID, RoleDoctor); err != nil {
			return err
		}
		if rec.Status == RecordingDeleted || rec.Status == RecordingFailed {
			return apperr.Transition("recording", rec.Status, "transcribed")
		}
		rec.Transcript = &transcript
		return s.recordings.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SummarizeRecording asks the summarizer for a clinical summary of a
// completed recording's transcript and copies it onto the session.
func (s *Service) SummarizeRecording(ctx context.Context, recordingID uuid.UUID) (*Recording, error) {
	rec, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, rec.SessionID, RoleDoctor); err != nil {
		return nil, err
	}
	if rec.Status != RecordingCompleted {
		return nil, apperr.Transition("recording", rec.Status, "summarized")
	}
	if rec.Transcript == nil || strings.TrimSpace(*rec.Transcript) == "" {
		return nil, apperr.Validation("recording has no transcript")
	}

	summary, err := s.summarizer.Summarize(ctx, *rec.Transcript)
	switch {
	case errors.Is(err, summarizer.ErrDisabled):
		return nil, fmt.Errorf("%w: summaries are not configured", apperr.ErrUnavailable)
	case errors.Is(err, summarizer.ErrEmptyTranscript):
		return nil, apperr.Validation("recording has no transcript")
	case err != nil:
		s.logger.Error().Err(err).Str("recording_id", recordingID.String()).Msg("summarize recording")
		return nil, fmt.Errorf("%w: summarize recording: %v", apperr.ErrUnavailable, err)
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if rec, err = s.recordings.GetForUpdate(ctx, recordingID); err != nil {
			return err
		}
		rec.Summary = &summary
		if err := s.recordings.Update(ctx, rec); err != nil {
			return err
		}
		sess, err := s.sessions.GetForUpdate(ctx, rec.SessionID)
		if err != nil {
			return err
		}
		sess.Summary = &summary
		return s.sessions.Update(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	s.publishRecording(ctx, rec)
	return rec, nil
}

// Recording returns a recording the caller may see.
func (s *Service) Recording(ctx context.Context, recordingID uuid.UUID) (*Recording, error) {
	rec, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, rec.SessionID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) moveRecording(ctx context.Context, recordingID uuid.UUID, to string, fn func(*Recording) error) (*Recording, error) {
	var rec *Recording
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if rec, err = s.recordings.GetForUpdate(ctx, recordingID); err != nil {
			return err
		}
		if _, err := s.authorize(ctx, rec.SessionID, RoleDoctor); err != nil {
			return err
		}
		if !canTransition(recordingTransitions, rec.Status, to) {
			return apperr.Transition("recording", rec.Status, to)
		}
		if err := fn(rec); err != nil {
			return err
		}
		rec.Status = to
		return s.recordings.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.publishRecording(ctx, rec)
	return rec, nil
}

// -- helpers --

// authorize checks the caller takes part in the session with one of roles
// (any role when none are given). Administrators always pass.
func (s *Service) authorize(ctx context.Context, sessionID uuid.UUID, roles ...string) (*Participant, error) {
	if auth.IsAdmin(ctx) {
		return nil, nil
	}
	p, err := s.participants.Get(ctx, sessionID, auth.UserUUIDFromContext(ctx))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return p, nil
	}
	for _, r := range roles {
		if p.Role == r {
			return p, nil
		}
	}
	return nil, apperr.ErrForbidden
}

func (s *Service) lockSession(ctx context.Context, id uuid.UUID, roles ...string) (*Session, error) {
	sess, err := s.sessions.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, id, roles...); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) notify(ctx context.Context, req notification.Request) {
	if _, err := s.notifier.Notify(ctx, req); err != nil {
		s.logger.Warn().Err(err).Str("user_id", req.UserID.String()).Str("type", req.Type).Msg("notify")
	}
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("topic", ev.Topic).Str("type", ev.Type).Msg("publish consultation event")
	}
}

// publishSession tells the session room and every participant's own topic.
// The room copy is the primary one.
func (s *Service) publishSession(ctx context.Context, eventType string, sess *Session) {
	s.publish(ctx, realtime.NewEvent(eventType, realtime.SessionTopic(sess.ID), "ConsultationSession", sess.ID, sess).AsPrimary())
	participants, err := s.participants.ListBySession(ctx, sess.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("list participants")
		return
	}
	for _, p := range participants {
		s.publish(ctx, realtime.NewEvent(eventType, realtime.UserTopic(p.UserID), "ConsultationSession", sess.ID, sess))
	}
}

func (s *Service) publishParticipant(ctx context.Context, p *Participant) {
	s.publish(ctx, realtime.NewEvent(realtime.EventParticipantChanged, realtime.SessionTopic(p.SessionID), "ConsultationParticipant", p.ID, p).AsPrimary())
}

func (s *Service) publishRecording(ctx context.Context, rec *Recording) {
	s.publish(ctx, realtime.NewEvent(realtime.EventRecordingChanged, realtime.SessionTopic(rec.SessionID), "ConsultationRecording", rec.ID, rec).AsPrimary())
}
