package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func requireRoleCall(roles []string, required ...string) (int, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), DevUserID.String(), roles))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireRole(required...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec.Code, err
}

func TestRequireRole_Allowed(t *testing.T) {
	code, err := requireRoleCall([]string{RoleDoctor}, RoleDoctor, RolePatient)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
}

func TestRequireRole_AdminAlwaysPasses(t *testing.T) {
	if _, err := requireRoleCall([]string{RoleAdmin}, RolePatient); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	_, err := requireRoleCall([]string{RolePatient}, RoleDoctor)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	if _, err := requireRoleCall(nil, RoleDoctor); err == nil {
		t.Error("expected error for caller without roles")
	}
}

func TestIsSelfOrAdmin(t *testing.T) {
	self := uuid.New()
	other := uuid.New()

	ctx := WithUser(context.Background(), self.String(), []string{RolePatient})
	if !IsSelfOrAdmin(ctx, other, self) {
		t.Error("expected owner to pass")
	}
	if IsSelfOrAdmin(ctx, other) {
		t.Error("expected non-owner to fail")
	}

	admin := WithUser(context.Background(), uuid.New().String(), []string{RoleAdmin})
	if !IsSelfOrAdmin(admin, other) {
		t.Error("expected admin to pass")
	}
	if IsSelfOrAdmin(context.Background(), uuid.Nil) {
		t.Error("expected anonymous caller to fail")
	}
}
