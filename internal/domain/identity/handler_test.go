package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/platform/auth"
)

func authedContext(e *echo.Echo, method, target, body, userID, role string) (echo.Context, *httptest.ResponseRecorder) {
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

func TestRegisterHandler(t *testing.T) {
	repo := newMockRepo()
	h := NewHandler(newTestService(repo, nil))

	e := echo.New()
	c, rec := authedContext(e, http.MethodPost, "/api/v1/actors",
		`{"email":"alice@example.com","first_name":"Alice","last_name":"Ames"}`,
		"patient-1", auth.RolePatient)

	if err := h.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if repo.actors["patient-1"] == nil {
		t.Error("expected actor row to be created")
	}
}

func TestRegisterHandler_RoleComesFromToken(t *testing.T) {
	repo := newMockRepo()
	h := NewHandler(newTestService(repo, nil))

	// The body cannot influence the role.
	e := echo.New()
	c, _ := authedContext(e, http.MethodPost, "/api/v1/actors",
		`{"email":"alice@example.com","role":"admin"}`,
		"patient-1", auth.RolePatient)

	if err := h.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := repo.actors["patient-1"].Role; got != auth.RolePatient {
		t.Errorf("expected role patient from token, got %s", got)
	}
}

func TestMeHandler(t *testing.T) {
	repo := newMockRepo()
	h := NewHandler(newTestService(repo, nil))
	seedActor(repo, "patient-1", "alice@example.com", auth.RolePatient)

	e := echo.New()
	c, rec := authedContext(e, http.MethodGet, "/api/v1/actors/me", "", "patient-1", auth.RolePatient)

	if err := h.Me(c); err != nil {
		t.Fatalf("me: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if repo.actors["patient-1"].LastLoginAt == nil {
		t.Error("expected last login to be stamped")
	}
}

func TestMeHandler_Unregistered(t *testing.T) {
	h := NewHandler(newTestService(newMockRepo(), nil))

	e := echo.New()
	c, _ := authedContext(e, http.MethodGet, "/api/v1/actors/me", "", "ghost", auth.RolePatient)

	err := h.Me(c)
	if err == nil {
		t.Fatal("expected error for unregistered subject")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestTrustedDoctorEndpoints(t *testing.T) {
	repo := newMockRepo()
	h := NewHandler(newTestService(repo, nil))
	seedActor(repo, "patient-1", "alice@example.com", auth.RolePatient)
	seedActor(repo, "doctor-1", "doc@example.com", auth.RoleDoctor)

	e := echo.New()

	c, rec := authedContext(e, http.MethodPost, "/api/v1/actors/me/trusted-doctors",
		`{"doctor_id":"doctor-1"}`, "patient-1", auth.RolePatient)
	if err := h.AddTrustedDoctor(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, rec = authedContext(e, http.MethodGet, "/api/v1/actors/me/trusted-doctors", "", "patient-1", auth.RolePatient)
	if err := h.ListTrustedDoctors(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "doctor-1") {
		t.Errorf("expected doctor-1 in list, got %s", rec.Body.String())
	}

	c, rec = authedContext(e, http.MethodDelete, "/api/v1/actors/me/trusted-doctors/doctor-1", "", "patient-1", auth.RolePatient)
	c.SetParamNames("doctorID")
	c.SetParamValues("doctor-1")
	if err := h.RemoveTrustedDoctor(c); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestAddTrustedDoctor_MissingBody(t *testing.T) {
	h := NewHandler(newTestService(newMockRepo(), nil))

	e := echo.New()
	c, _ := authedContext(e, http.MethodPost, "/api/v1/actors/me/trusted-doctors",
		`{}`, "patient-1", auth.RolePatient)

	err := h.AddTrustedDoctor(c)
	if err == nil {
		t.Fatal("expected error for missing doctor_id")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
