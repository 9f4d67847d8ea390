package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/settings/branding", h.GetBranding)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/settings", h.GetSettings)
	admin.PUT("/settings", h.UpdateSettings)
	admin.POST("/settings/test-email", h.SendTestEmail)
}

// Branding is the public subset of the settings.
type Branding struct {
	SiteName       string  `json:"site_name"`
	LogoURL        *string `json:"logo_url,omitempty"`
	PrimaryColor   string  `json:"primary_color"`
	SecondaryColor string  `json:"secondary_color"`
	Theme          string  `json:"theme"`
}

func (h *Handler) GetBranding(c echo.Context) error {
	st, err := h.svc.Get(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, Branding{
		SiteName:       st.SiteName,
		LogoURL:        st.LogoURL,
		PrimaryColor:   st.PrimaryColor,
		SecondaryColor: st.SecondaryColor,
		Theme:          st.Theme,
	})
}

func (h *Handler) GetSettings(c echo.Context) error {
	st, err := h.svc.Get(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	var u Update
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.Update(c.Request().Context(), &u)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SendTestEmail(c echo.Context) error {
	var req struct {
		To string `json:"to"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SendTestEmail(c.Request().Context(), req.To); err != nil {
		if apperr.Status(err) == http.StatusInternalServerError {
			return echo.NewHTTPError(http.StatusBadGateway, "test email failed: "+err.Error())
		}
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "sent", "to": req.To})
}
