package advisory

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

func TestAnalyzeHandler(t *testing.T) {
	svc, _, _ := newTestService(0)
	h := NewHandler(svc)

	e := echo.New()
	c, rec := authedContext(e, http.MethodPost, "/api/v1/advisory/analyze",
		`{"text":"glucose: 150","document_type":"lab-results"}`, "patient-1", auth.RolePatient)

	if err := h.Analyze(c); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "disclaimer") {
		t.Errorf("expected disclaimer in response, got %s", rec.Body.String())
	}
}

func TestAnalyzeHandler_OverLimit(t *testing.T) {
	svc, _, _ := newTestService(1)
	h := NewHandler(svc)

	e := echo.New()
	body := `{"text":"all normal"}`
	c, _ := authedContext(e, http.MethodPost, "/api/v1/advisory/analyze", body, "patient-1", auth.RolePatient)
	if err := h.Analyze(c); err != nil {
		t.Fatalf("first call: %v", err)
	}

	c, _ = authedContext(e, http.MethodPost, "/api/v1/advisory/analyze", body, "patient-1", auth.RolePatient)
	err := h.Analyze(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 over the daily limit, got %v", err)
	}
}

func TestUsageHandler(t *testing.T) {
	svc, _, _ := newTestService(50)
	h := NewHandler(svc)

	if _, err := svc.Analyze(context.Background(), "patient-1", "patient",
		AnalyzeInput{Text: "all normal"}, audit.RequestMeta{}); err != nil {
		t.Fatalf("seed analyze: %v", err)
	}

	e := echo.New()
	c, rec := authedContext(e, http.MethodGet, "/api/v1/advisory/usage", "", "patient-1", auth.RolePatient)
	if err := h.Usage(c); err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"used":1`) || !strings.Contains(rec.Body.String(), `"remaining":49`) {
		t.Errorf("unexpected usage body %s", rec.Body.String())
	}
}
