package appointment

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	anyUser := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	anyUser.GET("/appointment-requests", h.ListRequests)
	anyUser.GET("/appointment-requests/:id", h.GetRequest)
	anyUser.GET("/appointments", h.ListAppointments)
	anyUser.GET("/appointments/:id", h.GetAppointment)
	anyUser.POST("/appointments/:id/cancel", h.CancelAppointment)
	anyUser.POST("/appointments/:id/reschedule", h.Reschedule)

	patients := api.Group("", auth.RequireRole(auth.RolePatient))
	patients.POST("/appointment-requests", h.SubmitRequest)
	patients.POST("/appointment-requests/:id/cancel", h.CancelRequest)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctors.GET("/appointment-requests/:id/matches", h.MatchDoctors)
	doctors.POST("/appointment-requests/:id/approve", h.ApproveRequest)
	doctors.POST("/appointment-requests/:id/reject", h.RejectRequest)
	doctors.POST("/appointments/:id/complete", h.CompleteAppointment)
	doctors.POST("/appointments/:id/no-show", h.MarkNoShow)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id: "+raw)
	}
	return &id, nil
}

func optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid time: "+raw)
	}
	return &t, nil
}

// -- Requests --

func (h *Handler) SubmitRequest(c echo.Context) error {
	var r Request
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if r.PatientID == uuid.Nil && !auth.IsAdmin(ctx) {
		r.PatientID = auth.UserUUIDFromContext(ctx)
	}
	if err := h.svc.SubmitRequest(ctx, &r); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRequests(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	f := RequestFilter{
		Specialty: c.QueryParam("specialty"),
		Status:    c.QueryParam("status"),
	}
	var err error
	if f.PatientID, err = optionalUUID(c.QueryParam("patient_id")); err != nil {
		return err
	}
	if f.DoctorID, err = optionalUUID(c.QueryParam("doctor_id")); err != nil {
		return err
	}
	if !auth.IsAdmin(ctx) {
		self := auth.UserUUIDFromContext(ctx)
		switch {
		case auth.HasRole(ctx, auth.RolePatient):
			f.PatientID = &self
		case c.QueryParam("mine") == "true":
			f.DoctorID = &self
		}
	}
	items, total, err := h.svc.ListRequests(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MatchDoctors(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doctors, err := h.svc.MatchDoctors(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": doctors, "total": len(doctors)})
}

func (h *Handler) ApproveRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ApproveInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.ApproveRequest(c.Request().Context(), id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) RejectRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.RejectRequest(c.Request().Context(), id, body.Note)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CancelRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.CancelRequest(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

// -- Appointments --

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	f := AppointmentFilter{Status: c.QueryParam("status")}
	var err error
	if f.PatientID, err = optionalUUID(c.QueryParam("patient_id")); err != nil {
		return err
	}
	if f.DoctorID, err = optionalUUID(c.QueryParam("doctor_id")); err != nil {
		return err
	}
	if f.From, err = optionalTime(c.QueryParam("from")); err != nil {
		return err
	}
	if f.To, err = optionalTime(c.QueryParam("to")); err != nil {
		return err
	}
	if !auth.IsAdmin(ctx) {
		self := auth.UserUUIDFromContext(ctx)
		if auth.HasRole(ctx, auth.RolePatient) {
			f.PatientID = &self
		} else {
			f.DoctorID = &self
		}
	}
	items, total, err := h.svc.List(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id, body.Reason)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CompleteAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		ScheduledAt     time.Time `json:"scheduled_at"`
		DurationMinutes int       `json:"duration_minutes"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, body.ScheduledAt, body.DurationMinutes)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
