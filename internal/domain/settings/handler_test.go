package settings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_GetBranding(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetBranding(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "smtp") {
		t.Errorf("branding leaked smtp settings: %s", rec.Body.String())
	}
}

func TestHandler_UpdateSettings(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()
	body := `{"site_name":"Northside Clinic","smtp_password":"pw","theme":"dark"}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(adminCtx())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.UpdateSettings(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if _, ok := got["smtp_password"]; ok {
		t.Error("response must not include smtp_password")
	}
	if got["smtp_password_set"] != true {
		t.Error("expected smtp_password_set")
	}
}

func TestHandler_UpdateSettings_Invalid(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"smtp_port":0}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(adminCtx())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.UpdateSettings(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
