package consent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/domain/audit"
	"github.com/medvault/medvault/internal/platform/auth"
)

func handlerContext(e *echo.Echo, method, target, body, userID, role string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
	ctx = context.WithValue(ctx, auth.UserRoleKey, role)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateHandler(t *testing.T) {
	f := newFixture()
	f.seedVerifiedDoctor("doctor-1")
	f.seedPatient("patient-1", "alice@example.com")
	h := NewHandler(f.svc)

	e := echo.New()
	c, rec := handlerContext(e, http.MethodPost, "/api/v1/access-requests",
		`{"patient":"patient-1","reason":"follow-up consult"}`, "doctor-1", auth.RoleDoctor)

	if err := h.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Awaiting approval") {
		t.Errorf("expected pending message, got %s", rec.Body.String())
	}
}

func TestCreateHandler_AutoApprovedMessage(t *testing.T) {
	f := newFixture()
	f.seedVerifiedDoctor("doctor-1")
	f.seedPatient("patient-1", "alice@example.com")
	f.directory.trusted["patient-1|doctor-1"] = true
	h := NewHandler(f.svc)

	e := echo.New()
	c, rec := handlerContext(e, http.MethodPost, "/api/v1/access-requests",
		`{"patient":"patient-1"}`, "doctor-1", auth.RoleDoctor)

	if err := h.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "auto-approved") {
		t.Errorf("expected auto-approval message, got %s", rec.Body.String())
	}
}

func TestRespondHandler_Approve(t *testing.T) {
	f := newFixture()
	f.seedVerifiedDoctor("doctor-1")
	f.seedPatient("patient-1", "alice@example.com")
	h := NewHandler(f.svc)

	cr, _, err := f.svc.Create(context.Background(), "doctor-1",
		CreateInput{Patient: "patient-1"}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}

	e := echo.New()
	c, rec := handlerContext(e, http.MethodPatch, "/api/v1/access-requests/"+cr.ID.String(),
		`{"action":"approve","duration_days":14,"add_to_trusted":true}`, "patient-1", auth.RolePatient)
	c.SetParamNames("id")
	c.SetParamValues(cr.ID.String())

	if err := h.Respond(c); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), StatusApproved) {
		t.Errorf("expected approved in response, got %s", rec.Body.String())
	}
}

func TestRespondHandler_InvalidAction(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)

	e := echo.New()
	c, _ := handlerContext(e, http.MethodPatch, "/api/v1/access-requests/6b1ec197-2acd-4f0b-8d9c-0a4a44a1f0cf",
		`{"action":"escalate"}`, "patient-1", auth.RolePatient)
	c.SetParamNames("id")
	c.SetParamValues("6b1ec197-2acd-4f0b-8d9c-0a4a44a1f0cf")

	err := h.Respond(c)
	if err == nil {
		t.Fatal("expected error for invalid action")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestListHandler_ByRole(t *testing.T) {
	f := newFixture()
	f.seedVerifiedDoctor("doctor-1")
	f.seedPatient("patient-1", "alice@example.com")
	h := NewHandler(f.svc)

	if _, _, err := f.svc.Create(context.Background(), "doctor-1",
		CreateInput{Patient: "patient-1"}, audit.RequestMeta{}); err != nil {
		t.Fatalf("seed create: %v", err)
	}

	e := echo.New()

	c, rec := handlerContext(e, http.MethodGet, "/api/v1/access-requests", "", "doctor-1", auth.RoleDoctor)
	if err := h.List(c); err != nil {
		t.Fatalf("doctor list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "patient-1") {
		t.Errorf("expected doctor to see own request, got %s", rec.Body.String())
	}

	c, rec = handlerContext(e, http.MethodGet, "/api/v1/access-requests?status=pending", "", "patient-1", auth.RolePatient)
	if err := h.List(c); err != nil {
		t.Fatalf("patient list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "doctor-1") {
		t.Errorf("expected patient to see incoming request, got %s", rec.Body.String())
	}

	c, rec = handlerContext(e, http.MethodGet, "/api/v1/access-requests", "", "doctor-2", auth.RoleDoctor)
	if err := h.List(c); err != nil {
		t.Fatalf("other doctor list: %v", err)
	}
	if strings.Contains(rec.Body.String(), "patient-1") {
		t.Errorf("another doctor must not see the request, got %s", rec.Body.String())
	}
}
