package messaging

import (
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
	g := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	g.GET("/conversations", h.ListMine)
	g.POST("/conversations", h.Open)
	g.GET("/conversations/:id", h.Get)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.POST("/conversations/:id/messages", h.Send)
	g.POST("/conversations/:id/read", h.MarkRead)
	g.POST("/conversations/:id/attachments", h.UploadAttachment)
	g.GET("/messages/unread-count", h.UnreadCount)
	g.GET("/messages/:id/attachment", h.DownloadAttachment)
	g.GET("/users/:id/conversations", h.ListForUser)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Open(c echo.Context) error {
	var body struct {
		ParticipantID uuid.UUID `json:"participant_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conv, err := h.svc.GetOrCreateConversation(c.Request().Context(), body.ParticipantID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	conv, err := h.svc.GetConversation(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) ListMine(c echo.Context) error {
	return h.list(c, auth.UserUUIDFromContext(c.Request().Context()))
}

func (h *Handler) ListForUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.list(c, id)
}

func (h *Handler) list(c echo.Context, userID uuid.UUID) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConversations(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListMessages(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMessages(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Send(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in SendInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.SendMessage(c.Request().Context(), id, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkRead(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"marked": n})
}

func (h *Handler) UnreadCount(c echo.Context) error {
	n, err := h.svc.UnreadCount(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) UploadAttachment(c echo.Context) error {
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

	meta, err := h.svc.UploadAttachment(c.Request().Context(), id, file.Filename, file.Header.Get("Content-Type"), src)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, meta)
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	mediaID, err := h.svc.Attachment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return media.Serve(c, h.store, mediaID)
}
