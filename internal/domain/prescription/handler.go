package prescription

import (
	"fmt"
	"net/http"

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
	anyUser.GET("/prescriptions/:id", h.Get)
	anyUser.GET("/prescriptions/:id/pdf", h.PDF)
	anyUser.GET("/patients/:id/prescriptions", h.ListByPatient)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctors.POST("/prescriptions", h.Create)
	doctors.POST("/prescriptions/check-interactions", h.CheckInteractions)
	doctors.POST("/prescriptions/:id/cancel", h.Cancel)
	doctors.POST("/prescriptions/:id/complete", h.Complete)
	doctors.GET("/doctors/:id/prescriptions", h.ListByDoctor)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Create(c.Request().Context(), &in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) CheckInteractions(c echo.Context) error {
	var body struct {
		Drugs []string `json:"drugs"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.Drugs) < 2 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least two drugs are required")
	}
	findings := CheckInteractions(body.Drugs)
	if findings == nil {
		findings = []*Interaction{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"interactions": findings})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PDF(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	data, p, err := h.svc.RenderPDF(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="prescription-%s.pdf"`, p.ID))
	return c.Blob(http.StatusOK, "application/pdf", data)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), id, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), id, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
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
	p, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Complete(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}
