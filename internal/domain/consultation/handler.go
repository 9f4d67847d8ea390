package consultation

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/media"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc   *Service
	store media.Store
}

func NewHandler(svc *Service, store media.Store) *Handler {
	return &Handler{svc: svc, store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	anyUser := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	anyUser.GET("/consultations", h.List)
	anyUser.GET("/consultations/:id", h.Get)
	anyUser.POST("/consultations/:id/cancel", h.Cancel)
	anyUser.POST("/consultations/:id/join", h.Join)
	anyUser.POST("/consultations/:id/decline", h.Decline)
	anyUser.POST("/consultations/:id/leave", h.Leave)
	anyUser.GET("/recordings/:id", h.GetRecording)
	anyUser.GET("/recordings/:id/download", h.DownloadRecording)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctors.POST("/consultations", h.Create)
	doctors.POST("/consultations/:id/start", h.Start)
	doctors.POST("/consultations/:id/end", h.End)
	doctors.POST("/consultations/:id/participants", h.Invite)
	doctors.POST("/consultations/:id/recordings", h.StartRecording)
	doctors.POST("/recordings/:id/stop", h.StopRecording)
	doctors.PUT("/recordings/:id/media", h.UploadRecording)
	doctors.PUT("/recordings/:id/transcript", h.SetTranscript)
	doctors.POST("/recordings/:id/summarize", h.Summarize)
	doctors.DELETE("/recordings/:id", h.DeleteRecording)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var body struct {
		AppointmentID uuid.UUID `json:"appointment_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.AppointmentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id is required")
	}
	sess, err := h.svc.CreateForAppointment(c.Request().Context(), body.AppointmentID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := SessionFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("appointment_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
		}
		f.AppointmentID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Start(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Start(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) End(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.End(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Cancel(c echo.Context) error {
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
	sess, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// -- Participants --

func (h *Handler) Invite(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		UserID uuid.UUID `json:"user_id"`
		Role   string    `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Invite(c.Request().Context(), id, body.UserID, body.Role)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Join(c echo.Context) error {
	return h.participantAction(c, h.svc.Join)
}

func (h *Handler) Decline(c echo.Context) error {
	return h.participantAction(c, h.svc.Decline)
}

func (h *Handler) Leave(c echo.Context) error {
	return h.participantAction(c, h.svc.Leave)
}

func (h *Handler) participantAction(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Participant, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := fn(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Recordings --

func (h *Handler) StartRecording(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.StartRecording(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecording(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Recording(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DownloadRecording(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Recording(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if rec.Status != RecordingCompleted || rec.MediaID == nil {
		return echo.NewHTTPError(http.StatusNotFound, "recording media is not available")
	}
	return media.Serve(c, h.store, *rec.MediaID)
}

func (h *Handler) StopRecording(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.StopRecording(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UploadRecording(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
	}
	defer src.Close()

	rec, err := h.svc.UploadRecording(c.Request().Context(), id, file.Filename, file.Header.Get("Content-Type"), src)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) SetTranscript(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Transcript string `json:"transcript"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.SetTranscript(c.Request().Context(), id, body.Transcript)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Summarize(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.SummarizeRecording(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteRecording(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.DeleteRecording(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}
