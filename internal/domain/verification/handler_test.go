package verification

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/domain/audit"
	"github.com/medvault/medvault/internal/platform/auth"
)

func multipartBody(t *testing.T, docType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="documents"; filename="license.pdf"`)
	hdr.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.WriteField("document_types", docType); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func requestContext(e *echo.Echo, req *http.Request, userID, role string) (echo.Context, *httptest.ResponseRecorder) {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
	ctx = context.WithValue(ctx, auth.UserRoleKey, role)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSubmitHandler(t *testing.T) {
	svc, _, trail := newTestService()
	h := NewHandler(svc)

	body, contentType := multipartBody(t, DocGovernmentID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	e := echo.New()
	c, rec := requestContext(e, req, "doctor-1", auth.RoleDoctor)

	if err := h.Submit(c); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), StatusSubmitted) {
		t.Errorf("expected submitted status in response, got %s", rec.Body.String())
	}
	if len(trail.entries) != 1 {
		t.Errorf("expected 1 audit entry, got %d", len(trail.entries))
	}
}

func TestSubmitHandler_NoMultipart(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification/documents",
		strings.NewReader(`{"documents":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	e := echo.New()
	c, _ := requestContext(e, req, "doctor-1", auth.RoleDoctor)

	err := h.Submit(c)
	if err == nil {
		t.Fatal("expected error without multipart form")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestGetOwnHandler_NotSubmitted(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verification", nil)
	e := echo.New()
	c, rec := requestContext(e, req, "doctor-1", auth.RoleDoctor)

	if err := h.GetOwn(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(rec.Body.String(), StatusNotSubmitted) {
		t.Errorf("expected synthetic not_submitted view, got %s", rec.Body.String())
	}
}

func TestReviewHandler(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	v, err := svc.Submit(context.Background(), "doctor-1",
		[]DocumentUpload{pdfUpload(DocMRN)}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("seed submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/verifications/"+v.ID.String(),
		strings.NewReader(`{"action":"approve"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	e := echo.New()
	c, rec := requestContext(e, req, "admin-1", auth.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues(v.ID.String())

	if err := h.Review(c); err != nil {
		t.Fatalf("review: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), StatusVerified) {
		t.Errorf("expected verified in response, got %s", rec.Body.String())
	}
}

func TestReviewHandler_ConflictSurfacesState(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	ctx := context.Background()

	v, _ := svc.Submit(ctx, "doctor-1", []DocumentUpload{pdfUpload(DocMRN)}, audit.RequestMeta{})
	if _, err := svc.Review(ctx, "admin-1", v.ID, ActionReject, "", audit.RequestMeta{}); err != nil {
		t.Fatalf("seed reject: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/verifications/"+v.ID.String(),
		strings.NewReader(`{"action":"approve"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	e := echo.New()
	c, _ := requestContext(e, req, "admin-1", auth.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues(v.ID.String())

	err := h.Review(c)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	if msg, _ := httpErr.Message.(string); !strings.Contains(msg, StatusRejected) {
		t.Errorf("conflict message should name the current state, got %v", httpErr.Message)
	}
}

func TestListHandler(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	if _, err := svc.Submit(context.Background(), "doctor-1",
		[]DocumentUpload{pdfUpload(DocMRN)}, audit.RequestMeta{}); err != nil {
		t.Fatalf("seed submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/verifications?status=submitted", nil)
	e := echo.New()
	c, rec := requestContext(e, req, "admin-1", auth.RoleAdmin)

	if err := h.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "doctor-1") {
		t.Errorf("expected doctor-1 in listing, got %s", rec.Body.String())
	}
}
