package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/email"
	"github.com/carelink/carelink/internal/platform/realtime"
)

// Directory is the subset of the directory service used for matching and
// addressing.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	ActiveDoctorsBySpecialty(ctx context.Context, specialty string) ([]*directory.Doctor, error)
	Contact(ctx context.Context, id uuid.UUID) (*directory.Contact, error)
}

// ConsultationScheduler opens and closes video consultations for
// appointments. Calls made with a transactional ctx join that transaction.
// CancelForAppointment returns the cancelled session, or uuid.Nil, and
// AnnounceCancelled is called with it once the transaction has committed.
type ConsultationScheduler interface {
	ScheduleForAppointment(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error)
	CancelForAppointment(ctx context.Context, appointmentID uuid.UUID, reason string) (uuid.UUID, error)
	AnnounceCancelled(ctx context.Context, sessionID uuid.UUID)
}

type Notifier interface {
	Notify(ctx context.Context, req notification.Request) (*notification.Notification, error)
}

type Service struct {
	requests      RequestRepository
	appointments  AppointmentRepository
	directory     Directory
	consultations ConsultationScheduler
	notifier      Notifier
	publisher     realtime.Publisher
	tx            db.TxRunner
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(
	requests RequestRepository,
	appointments AppointmentRepository,
	dir Directory,
	notifier Notifier,
	publisher realtime.Publisher,
	tx db.TxRunner,
	logger zerolog.Logger,
) *Service {
	return &Service{
		requests:     requests,
		appointments: appointments,
		directory:    dir,
		notifier:     notifier,
		publisher:    publisher,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
	}
}

// SetConsultationScheduler wires the consultation service, which itself
// depends on this service.
func (s *Service) SetConsultationScheduler(c ConsultationScheduler) {
	s.consultations = c
}

// -- Requests --

// SubmitRequest records a patient's appointment request and matches a
// doctor to it when one is available.
func (s *Service) SubmitRequest(ctx context.Context, r *Request) error {
	if r.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if !auth.IsSelfOrAdmin(ctx, r.PatientID) {
		return apperr.ErrForbidden
	}
	r.Specialty = strings.TrimSpace(r.Specialty)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Specialty == "" {
		return apperr.Validation("specialty is required")
	}
	if r.Reason == "" {
		return apperr.Validation("reason is required")
	}
	if r.PreferredStart.IsZero() || r.PreferredEnd.IsZero() {
		return apperr.Validation("preferred_start and preferred_end are required")
	}
	if !r.PreferredEnd.After(r.PreferredStart) {
		return apperr.Validation("preferred_end must be after preferred_start")
	}
	if r.PreferredStart.Before(s.now()) {
		return apperr.Validation("preferred_start must not be in the past")
	}
	if !validModes[r.Mode] {
		return apperr.Validation("mode must be video or in-person")
	}
	if r.DoctorID != nil {
		d, err := s.directory.GetDoctor(ctx, *r.DoctorID)
		if err != nil {
			return err
		}
		if !d.Active {
			return apperr.Validation("doctor %s is not accepting appointments", d.FullName)
		}
		if !strings.EqualFold(d.Specialty, r.Specialty) {
			return apperr.Validation("doctor %s does not practice %s", d.FullName, r.Specialty)
		}
	}

	r.Status = RequestPending
	r.MatchedDoctorID = nil
	r.AppointmentID = nil
	r.ReviewNote, r.ReviewedBy, r.ReviewedAt = nil, nil, nil
	if err := s.requests.Create(ctx, r); err != nil {
		return err
	}

	candidates, err := s.MatchDoctors(ctx, r.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", r.ID.String()).Msg("match doctors for new request")
		return nil
	}
	if len(candidates) > 0 {
		r.MatchedDoctorID = &candidates[0].ID
		s.notify(ctx, notification.Request{
			UserID: candidates[0].ID,
			Type:   notification.TypeRequestSubmitted,
			Title:  "New appointment request",
			Body:   fmt.Sprintf("A patient requested a %s appointment: %s", r.Specialty, r.Reason),
			Link:   "/appointment-requests/" + r.ID.String(),
		})
	}
	return nil
}

// MatchDoctors returns doctors free for the whole preferred window of a
// pending request and stores the first one as the request's match.
func (s *Service) MatchDoctors(ctx context.Context, requestID uuid.UUID) ([]*directory.Doctor, error) {
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != RequestPending {
		return nil, apperr.Transition("appointment request", r.Status, "matched")
	}

	candidates, err := s.candidates(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 && (r.MatchedDoctorID == nil || *r.MatchedDoctorID != candidates[0].ID) {
		r.MatchedDoctorID = &candidates[0].ID
		if err := s.requests.Update(ctx, r); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

func (s *Service) candidates(ctx context.Context, r *Request) ([]*directory.Doctor, error) {
	var pool []*directory.Doctor
	if r.DoctorID != nil {
		d, err := s.directory.GetDoctor(ctx, *r.DoctorID)
		if err != nil {
			return nil, err
		}
		if d.Active {
			pool = append(pool, d)
		}
	} else {
		var err error
		pool, err = s.directory.ActiveDoctorsBySpecialty(ctx, r.Specialty)
		if err != nil {
			return nil, err
		}
	}

	var free []*directory.Doctor
	for _, d := range pool {
		busy, err := s.appointments.HasConflict(ctx, d.ID, r.PreferredStart, r.PreferredEnd, nil)
		if err != nil {
			return nil, err
		}
		if !busy {
			free = append(free, d)
		}
	}
	return free, nil
}

// ApproveRequest turns a pending request into a confirmed appointment and,
// for video visits, a scheduled consultation, in one transaction.
func (s *Service) ApproveRequest(ctx context.Context, requestID uuid.UUID, in ApproveInput) (*Appointment, error) {
	if !auth.HasRole(ctx, auth.RoleDoctor) && !auth.IsAdmin(ctx) {
		return nil, apperr.ErrForbidden
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = DefaultDurationMinutes
	}
	if duration < MinDurationMinutes || duration > MaxDurationMinutes {
		return nil, apperr.Validation("duration_minutes must be between %d and %d", MinDurationMinutes, MaxDurationMinutes)
	}

	var (
		appt *Appointment
		req  *Request
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return apperr.Transition("appointment request", req.Status, RequestApproved)
		}

		doctorID, err := s.chooseDoctor(ctx, req, in.DoctorID)
		if err != nil {
			return err
		}
		if !auth.IsAdmin(ctx) && doctorID != auth.UserUUIDFromContext(ctx) {
			return fmt.Errorf("%w: doctors can only approve requests for themselves", apperr.ErrForbidden)
		}
		doctor, err := s.directory.GetDoctor(ctx, doctorID)
		if err != nil {
			return err
		}
		if !doctor.Active {
			return apperr.Validation("doctor %s is not accepting appointments", doctor.FullName)
		}

		start := req.PreferredStart
		if in.ScheduledAt != nil {
			start = *in.ScheduledAt
		}
		if start.Before(s.now()) {
			return apperr.Validation("scheduled_at must not be in the past")
		}

		appt = &Appointment{
			RequestID:       &req.ID,
			PatientID:       req.PatientID,
			DoctorID:        doctorID,
			ScheduledAt:     start,
			DurationMinutes: duration,
			Mode:            req.Mode,
			Status:          StatusConfirmed,
		}
		if err := s.appointments.LockDoctorSchedule(ctx, doctorID); err != nil {
			return err
		}
		busy, err := s.appointments.HasConflict(ctx, doctorID, start, appt.EndsAt(), nil)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: doctor already has an appointment at %s", apperr.ErrConflict, start.Format(time.RFC3339))
		}
		if err := s.appointments.Create(ctx, appt); err != nil {
			return err
		}

		now := s.now()
		reviewer := auth.UserUUIDFromContext(ctx)
		req.Status = RequestApproved
		req.AppointmentID = &appt.ID
		req.MatchedDoctorID = &doctorID
		req.ReviewedAt = &now
		if reviewer != uuid.Nil {
			req.ReviewedBy = &reviewer
		}
		if note := strings.TrimSpace(in.Note); note != "" {
			req.ReviewNote = &note
		}
		if err := s.requests.Update(ctx, req); err != nil {
			return err
		}

		if appt.Mode == ModeVideo && s.consultations != nil {
			sessionID, err := s.consultations.ScheduleForAppointment(ctx, appt.ID)
			if err != nil {
				return fmt.Errorf("schedule consultation: %w", err)
			}
			appt.ConsultationID = &sessionID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Msg("appointment request approved")

	s.publishAppointment(ctx, realtime.EventAppointmentApproved, appt)
	data := s.emailData(ctx, appt)
	s.notify(ctx, notification.Request{
		UserID: appt.PatientID,
		Type:   notification.TypeRequestApproved,
		Title:  "Appointment confirmed",
		Body:   fmt.Sprintf("Your appointment with %s is confirmed for %s at %s.", data["doctor_name"], data["date"], data["time"]),
		Link:   "/appointments/" + appt.ID.String(),
		Email:  &notification.EmailRequest{TemplateID: email.TemplateRequestApproved, Data: data},
	})
	if appt.DoctorID != auth.UserUUIDFromContext(ctx) {
		s.notify(ctx, notification.Request{
			UserID: appt.DoctorID,
			Type:   notification.TypeRequestApproved,
			Title:  "New appointment",
			Body:   fmt.Sprintf("%s on %s at %s.", data["patient_name"], data["date"], data["time"]),
			Link:   "/appointments/" + appt.ID.String(),
		})
	}
	return appt, nil
}

// chooseDoctor picks the explicit doctor, then the requested one, then the
// stored match, then the first free candidate.
func (s *Service) chooseDoctor(ctx context.Context, r *Request, explicit *uuid.UUID) (uuid.UUID, error) {
	switch {
	case explicit != nil && *explicit != uuid.Nil:
		return *explicit, nil
	case r.DoctorID != nil:
		return *r.DoctorID, nil
	case r.MatchedDoctorID != nil:
		return *r.MatchedDoctorID, nil
	}
	candidates, err := s.candidates(ctx, r)
	if err != nil {
		return uuid.Nil, err
	}
	if len(candidates) == 0 {
		return uuid.Nil, fmt.Errorf("%w: no %s doctor is available in the preferred window", apperr.ErrConflict, r.Specialty)
	}
	return candidates[0].ID, nil
}

func (s *Service) RejectRequest(ctx context.Context, requestID uuid.UUID, note string) (*Request, error) {
	if !auth.HasRole(ctx, auth.RoleDoctor) && !auth.IsAdmin(ctx) {
		return nil, apperr.ErrForbidden
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperr.Validation("a review note is required to reject a request")
	}

	var req *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return apperr.Transition("appointment request", req.Status, RequestRejected)
		}
		now := s.now()
		reviewer := auth.UserUUIDFromContext(ctx)
		req.Status = RequestRejected
		req.ReviewNote = &note
		req.ReviewedAt = &now
		if reviewer != uuid.Nil {
			req.ReviewedBy = &reviewer
		}
		return s.requests.Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	data := map[string]string{"specialty": req.Specialty, "note": note}
	if c, err := s.directory.Contact(ctx, req.PatientID); err == nil {
		data["patient_name"] = c.Name
	}
	s.notify(ctx, notification.Request{
		UserID: req.PatientID,
		Type:   notification.TypeRequestRejected,
		Title:  "Appointment request declined",
		Body:   note,
		Link:   "/appointment-requests/" + req.ID.String(),
		Email:  &notification.EmailRequest{TemplateID: email.TemplateRequestRejected, Data: data},
	})
	return req, nil
}

// CancelRequest withdraws a pending request. Only the requesting patient
// or an administrator may do this.
func (s *Service) CancelRequest(ctx context.Context, requestID uuid.UUID) (*Request, error) {
	var req *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !auth.IsSelfOrAdmin(ctx, req.PatientID) {
			return apperr.ErrForbidden
		}
		if req.Status != RequestPending {
			return apperr.Transition("appointment request", req.Status, RequestCancelled)
		}
		req.Status = RequestCancelled
		return s.requests.Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.HasRole(ctx, auth.RolePatient) && !auth.IsSelfOrAdmin(ctx, r.PatientID) {
		return nil, apperr.ErrForbidden
	}
	return r, nil
}

func (s *Service) ListRequests(ctx context.Context, f RequestFilter, limit, offset int) ([]*Request, int, error) {
	if f.Status != "" && !validRequestStatuses[f.Status] {
		return nil, 0, apperr.Validation("invalid status: %s", f.Status)
	}
	return s.requests.List(ctx, f, limit, offset)
}

// -- Appointments --

// Lookup returns an appointment without access checks. It serves other
// services acting on behalf of an already authorized caller.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.IsSelfOrAdmin(ctx, a.PatientID, a.DoctorID) {
		return nil, apperr.ErrForbidden
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validAppointmentStatuses[f.Status] {
		return nil, 0, apperr.Validation("invalid status: %s", f.Status)
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// transition loads the appointment for update, checks access and that it
// is confirmed, applies fn and saves it.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to string, clinicianOnly bool, fn func(ctx context.Context, a *Appointment) error) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		allowed := []uuid.UUID{a.DoctorID}
		if !clinicianOnly {
			allowed = append(allowed, a.PatientID)
		}
		if !auth.IsSelfOrAdmin(ctx, allowed...) {
			return apperr.ErrForbidden
		}
		if a.Status != StatusConfirmed {
			return apperr.Transition("appointment", a.Status, to)
		}
		if err := fn(ctx, a); err != nil {
			return err
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	return appt, err
}

// CancelAppointment cancels a confirmed appointment together with any open
// consultation and tells the other party.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	var session uuid.UUID
	appt, err := s.transition(ctx, id, StatusCancelled, false, func(ctx context.Context, a *Appointment) error {
		a.Status = StatusCancelled
		a.CancelReason = &reason
		var err error
		session, err = s.cancelConsultation(ctx, a.ID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.announceCancelled(ctx, session)

	s.publishAppointment(ctx, realtime.EventAppointmentChanged, appt)
	data := s.emailData(ctx, appt)
	data["reason"] = reason
	for _, userID := range s.otherParties(ctx, appt) {
		s.notify(ctx, notification.Request{
			UserID: userID,
			Type:   notification.TypeAppointmentCancelled,
			Title:  "Appointment cancelled",
			Body:   fmt.Sprintf("The appointment on %s at %s was cancelled: %s", data["date"], data["time"], reason),
			Link:   "/appointments/" + appt.ID.String(),
			Email:  &notification.EmailRequest{TemplateID: email.TemplateAppointmentCancelled, Data: data},
		})
	}
	return appt, nil
}

// CompleteAppointment is called by the treating doctor or an admin.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, id, StatusCompleted, true, func(_ context.Context, a *Appointment) error {
		a.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishAppointment(ctx, realtime.EventAppointmentChanged, appt)
	return appt, nil
}

// MarkCompleted completes a confirmed appointment without access checks.
// Appointments that are no longer confirmed are left alone.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusConfirmed {
			return nil
		}
		a.Status = StatusCompleted
		return s.appointments.Update(ctx, a)
	})
}

// MarkNoShow records that the patient did not attend. It is only allowed
// once the appointment has started.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var session uuid.UUID
	appt, err := s.transition(ctx, id, StatusNoShow, true, func(ctx context.Context, a *Appointment) error {
		if s.now().Before(a.ScheduledAt) {
			return apperr.Validation("an appointment cannot be marked no-show before it starts")
		}
		a.Status = StatusNoShow
		var err error
		session, err = s.cancelConsultation(ctx, a.ID, "patient did not attend")
		return err
	})
	if err != nil {
		return nil, err
	}
	s.announceCancelled(ctx, session)
	s.publishAppointment(ctx, realtime.EventAppointmentChanged, appt)
	return appt, nil
}

// Reschedule moves a confirmed appointment, re-checking the doctor's
// calendar and re-arming the reminder.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Appointment, error) {
	if start.IsZero() {
		return nil, apperr.Validation("scheduled_at is required")
	}
	if start.Before(s.now()) {
		return nil, apperr.Validation("scheduled_at must not be in the past")
	}
	if durationMinutes != 0 && (durationMinutes < MinDurationMinutes || durationMinutes > MaxDurationMinutes) {
		return nil, apperr.Validation("duration_minutes must be between %d and %d", MinDurationMinutes, MaxDurationMinutes)
	}

	appt, err := s.transition(ctx, id, StatusConfirmed, false, func(ctx context.Context, a *Appointment) error {
		a.ScheduledAt = start
		if durationMinutes != 0 {
			a.DurationMinutes = durationMinutes
		}
		if err := s.appointments.LockDoctorSchedule(ctx, a.DoctorID); err != nil {
			return err
		}
		busy, err := s.appointments.HasConflict(ctx, a.DoctorID, a.ScheduledAt, a.EndsAt(), &a.ID)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: doctor already has an appointment at %s", apperr.ErrConflict, start.Format(time.RFC3339))
		}
		a.ReminderSentAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishAppointment(ctx, realtime.EventAppointmentChanged, appt)
	data := s.emailData(ctx, appt)
	for _, userID := range s.otherParties(ctx, appt) {
		s.notify(ctx, notification.Request{
			UserID: userID,
			Type:   notification.TypeAppointmentUpdated,
			Title:  "Appointment rescheduled",
			Body:   fmt.Sprintf("The appointment now starts on %s at %s.", data["date"], data["time"]),
			Link:   "/appointments/" + appt.ID.String(),
		})
	}
	return appt, nil
}

// SendReminders notifies patients of confirmed appointments starting
// within window that have not been reminded yet. It returns the number of
// reminders sent.
func (s *Service) SendReminders(ctx context.Context, window time.Duration) (int, error) {
	now := s.now()
	due, err := s.appointments.DueForReminder(ctx, now, now.Add(window))
	if err != nil {
		return 0, fmt.Errorf("load due reminders: %w", err)
	}

	sent := 0
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		data := s.emailData(ctx, a)
		_, err := s.notifier.Notify(ctx, notification.Request{
			UserID: a.PatientID,
			Type:   notification.TypeAppointmentReminder,
			Title:  "Upcoming appointment",
			Body:   fmt.Sprintf("Reminder: %s with %s at %s.", data["date"], data["doctor_name"], data["time"]),
			Link:   "/appointments/" + a.ID.String(),
			Email:  &notification.EmailRequest{TemplateID: email.TemplateAppointmentReminder, Data: data},
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("send appointment reminder")
			continue
		}
		if err := s.appointments.MarkReminderSent(ctx, a.ID, now); err != nil {
			return sent, fmt.Errorf("mark reminder sent: %w", err)
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info().Int("count", sent).Msg("appointment reminders sent")
	}
	return sent, nil
}

// -- helpers --

// otherParties returns who to tell about a change made by the caller.
func (s *Service) otherParties(ctx context.Context, a *Appointment) []uuid.UUID {
	switch auth.UserUUIDFromContext(ctx) {
	case a.PatientID:
		return []uuid.UUID{a.DoctorID}
	case a.DoctorID:
		return []uuid.UUID{a.PatientID}
	default:
		return []uuid.UUID{a.PatientID, a.DoctorID}
	}
}

func (s *Service) emailData(ctx context.Context, a *Appointment) map[string]string {
	data := map[string]string{
		"date": a.ScheduledAt.UTC().Format("Mon, 02 Jan 2006"),
		"time": a.ScheduledAt.UTC().Format("15:04 MST"),
		"mode": a.Mode,
	}
	if c, err := s.directory.Contact(ctx, a.PatientID); err == nil {
		data["patient_name"] = c.Name
	}
	if c, err := s.directory.Contact(ctx, a.DoctorID); err == nil {
		data["doctor_name"] = c.Name
	}
	return data
}

func (s *Service) notify(ctx context.Context, req notification.Request) {
	if _, err := s.notifier.Notify(ctx, req); err != nil {
		s.logger.Warn().Err(err).Str("user_id", req.UserID.String()).Str("type", req.Type).Msg("notify")
	}
}

func (s *Service) cancelConsultation(ctx context.Context, appointmentID uuid.UUID, reason string) (uuid.UUID, error) {
	if s.consultations == nil {
		return uuid.Nil, nil
	}
	session, err := s.consultations.CancelForAppointment(ctx, appointmentID, reason)
	if err != nil {
		return uuid.Nil, fmt.Errorf("cancel consultation: %w", err)
	}
	return session, nil
}

func (s *Service) announceCancelled(ctx context.Context, session uuid.UUID) {
	if s.consultations != nil && session != uuid.Nil {
		s.consultations.AnnounceCancelled(ctx, session)
	}
}

// publishAppointment tells both parties. The patient copy is the primary one.
func (s *Service) publishAppointment(ctx context.Context, eventType string, a *Appointment) {
	for i, userID := range []uuid.UUID{a.PatientID, a.DoctorID} {
		ev := realtime.NewEvent(eventType, realtime.UserTopic(userID), "Appointment", a.ID, a)
		if i == 0 {
			ev = ev.AsPrimary()
		}
		if err := s.publisher.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("publish appointment event")
		}
	}
}
