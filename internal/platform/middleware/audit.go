package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/auth"
)

// Audit emits one "phi_access" log line per /api/v1 request recording who
// touched which resource. It runs after auth so the caller is known.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()

			logger.Info().
				Str("type", "audit").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("resource", resourceFromPath(req.URL.Path)).
				Str("patient_id", patientFromRequest(c)).
				Str("action", methodToAction(req.Method)).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Msg("phi_access")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath returns the first segment after /api/v1/.
func resourceFromPath(path string) string {
	seg := strings.SplitN(strings.TrimPrefix(path, "/api/v1/"), "/", 2)
	if len(seg) > 0 && seg[0] != "" {
		return seg[0]
	}
	return "unknown"
}

func patientFromRequest(c echo.Context) string {
	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/v1/patients/") {
		seg := strings.SplitN(strings.TrimPrefix(path, "/api/v1/patients/"), "/", 2)
		if _, err := uuid.Parse(seg[0]); err == nil {
			return seg[0]
		}
	}
	if pid := c.QueryParam("patient_id"); pid != "" {
		if _, err := uuid.Parse(pid); err == nil {
			return pid
		}
	}
	return ""
}
