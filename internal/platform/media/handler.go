package media

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

// Handler exposes stored objects to administrators, chiefly for downloading
// generated reports. Module-specific downloads go through their own
// handlers, which check ownership first.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/media", auth.RequireRole(auth.RoleAdmin))
	g.GET("/:id", h.Download)
	g.GET("/:id/metadata", h.GetMetadata)
}

// Serve streams the object id to the client as an attachment.
func Serve(c echo.Context, store Store, id string) error {
	rc, meta, err := store.Download(c.Request().Context(), id)
	if err != nil {
		return StatusError(err)
	}
	defer rc.Close()

	name := meta.FileName
	if name == "" {
		name = meta.ID
	}
	c.Response().Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	ct := meta.ContentType
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, ct, rc)
}

func (h *Handler) Download(c echo.Context) error {
	return Serve(c, h.store, c.Param("id"))
}

func (h *Handler) GetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return StatusError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

// StatusError maps storage errors to HTTP errors.
func StatusError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("media storage: %v", err))
	}
}

func parseDisposition(v string) (string, map[string]string, error) {
	return mime.ParseMediaType(v)
}
