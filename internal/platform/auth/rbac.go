package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admins always pass.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, has := range userRoles {
				if has == RoleAdmin {
					return next(c)
				}
				for _, required := range roles {
					if has == required {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether the caller in ctx holds role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

func IsAdmin(ctx context.Context) bool {
	return HasRole(ctx, RoleAdmin)
}

// IsSelfOrAdmin reports whether the caller is an admin or one of ids.
func IsSelfOrAdmin(ctx context.Context, ids ...uuid.UUID) bool {
	if IsAdmin(ctx) {
		return true
	}
	caller := UserUUIDFromContext(ctx)
	if caller == uuid.Nil {
		return false
	}
	for _, id := range ids {
		if id == caller {
			return true
		}
	}
	return false
}
