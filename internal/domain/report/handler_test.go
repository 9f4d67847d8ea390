package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newContext(ctx context.Context, method, body string, id uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req.WithContext(ctx), rec)
	if id != uuid.Nil {
		c.SetParamNames("id")
		c.SetParamValues(id.String())
	}
	return c, rec
}

func TestHandler_CreateRunDownload(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, f.store)

	body := `{"name":"Backlog","report_type":"request-backlog","schedule":"@daily","recipients":["ops@example.com"],"active":true}`
	c, rec := newContext(asAdmin(), http.MethodPost, body, uuid.Nil)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created ScheduledReport
	json.Unmarshal(rec.Body.Bytes(), &created)

	c, _ = newContext(asAdmin(), http.MethodGet, "", created.ID)
	err := h.Download(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before the first run, got %v", err)
	}

	c, rec = newContext(asAdmin(), http.MethodPost, "", created.ID)
	if err := h.Run(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"last_status":"succeeded"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, rec = newContext(asAdmin(), http.MethodGet, "", created.ID)
	if err := h.Download(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("expected a zip container")
	}
}

func TestHandler_CreateInvalid(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, f.store)

	c, _ := newContext(asAdmin(), http.MethodPost, `{"name":"x","report_type":"revenue"}`, uuid.Nil)
	err := h.Create(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListTypes(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, f.store)

	c, rec := newContext(asAdmin(), http.MethodGet, "", uuid.Nil)
	if err := h.ListTypes(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "SELECT") {
		t.Error("expected queries to stay server-side")
	}
	var defs []Definition
	json.Unmarshal(rec.Body.Bytes(), &defs)
	if len(defs) != 4 || defs[0].Type != TypeAppointmentVolume {
		t.Errorf("unexpected definitions: %s", rec.Body.String())
	}
}
