package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/platform/auth"
)

func seedEntries(t *testing.T, svc *Service) {
	t.Helper()
	for _, rec := range []Record{
		{Action: ActionPatientDataAccessed, ActorID: "doctor-1", PatientID: "patient-1"},
		{Action: ActionAccessRequestCreated, ActorID: "doctor-1", PatientID: "patient-1"},
	} {
		if err := svc.Append(context.Background(), rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func adminContext(e *echo.Echo, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	ctx := context.WithValue(req.Context(), auth.UserRoleKey, auth.RoleAdmin)
	ctx = context.WithValue(ctx, auth.UserIDKey, "admin-1")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestListEntries(t *testing.T) {
	svc := NewService(&mockRepo{})
	seedEntries(t, svc)
	h := NewHandler(svc)

	e := echo.New()
	c, rec := adminContext(e, "/api/v1/audit-logs")

	if err := h.ListEntries(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestListEntries_FilterByAction(t *testing.T) {
	svc := NewService(&mockRepo{})
	seedEntries(t, svc)
	h := NewHandler(svc)

	e := echo.New()
	c, rec := adminContext(e, "/api/v1/audit-logs?action=PATIENT_ACCESS_REQUEST_CREATED")

	if err := h.ListEntries(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestListEntries_BadTimestamp(t *testing.T) {
	svc := NewService(&mockRepo{})
	h := NewHandler(svc)

	e := echo.New()
	c, _ := adminContext(e, "/api/v1/audit-logs?from=yesterday")

	err := h.ListEntries(c)
	if err == nil {
		t.Fatal("expected error for bad timestamp")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestGetEntry_InvalidID(t *testing.T) {
	svc := NewService(&mockRepo{})
	h := NewHandler(svc)

	e := echo.New()
	c, _ := adminContext(e, "/api/v1/audit-logs/not-a-uuid")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetEntry(c)
	if err == nil {
		t.Fatal("expected error for invalid id")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	svc := NewService(&mockRepo{})
	h := NewHandler(svc)

	e := echo.New()
	c, _ := adminContext(e, "/api/v1/audit-logs/6b1ec197-2acd-4f0b-8d9c-0a4a44a1f0cf")
	c.SetParamNames("id")
	c.SetParamValues("6b1ec197-2acd-4f0b-8d9c-0a4a44a1f0cf")

	err := h.GetEntry(c)
	if err == nil {
		t.Fatal("expected error for missing entry")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestMetaFromEcho(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-42")

	meta := MetaFromEcho(c)
	if meta.RequestID != "req-42" {
		t.Errorf("expected request id req-42, got %s", meta.RequestID)
	}
	if meta.UserAgent != "test-agent" {
		t.Errorf("expected user agent test-agent, got %s", meta.UserAgent)
	}
	if meta.IPAddress == "" {
		t.Error("expected non-empty IP address")
	}
}
