package verification

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/domain/audit"
	"github.com/medvault/medvault/internal/platform/apperror"
	"github.com/medvault/medvault/internal/platform/auth"
	"github.com/medvault/medvault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := api.Group("/verification", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("", h.GetOwn)
	doctor.POST("/documents", h.Submit)

	// Document bytes are readable by the owning doctor and by admins.
	api.GET("/verification/documents/:ref", h.DownloadDocument,
		auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))

	admin := api.Group("/admin/verifications", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.List)
	admin.PATCH("/:id", h.Review)
}

// Submit accepts a multipart form: files under "documents", their types
// under "document_types", pairwise.
func (h *Handler) Submit(c echo.Context) error {
	ctx := c.Request().Context()
	doctorID := auth.UserIDFromContext(ctx)

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File["documents"]
	types := form.Value["document_types"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}
	if len(files) != len(types) {
		return echo.NewHTTPError(http.StatusBadRequest, "document count mismatch")
	}

	uploads := make([]DocumentUpload, 0, len(files))
	for i, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file "+fh.Filename)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file "+fh.Filename)
		}
		uploads = append(uploads, DocumentUpload{
			Type:        types[i],
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	v, err := h.svc.Submit(ctx, doctorID, uploads, audit.MetaFromEcho(c))
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "documents uploaded",
		"verification": map[string]interface{}{
			"id":             v.ID,
			"status":         v.Status,
			"document_count": len(v.Documents),
		},
	})
}

func (h *Handler) GetOwn(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.svc.Get(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	ctx := c.Request().Context()
	meta, data, err := h.svc.OpenDocument(ctx,
		auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), c.Param("ref"))
	if err != nil {
		return apperror.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+meta.FileName+`"`)
	return c.Blob(http.StatusOK, meta.ContentType, data)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	items, total, err := h.svc.List(ctx, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if items == nil {
		items = []*Verification{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type reviewRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (h *Handler) Review(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req reviewRequest
	if err := c.Bind(&req); err != nil || req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}

	v, err := h.svc.Review(ctx, auth.UserIDFromContext(ctx), id, req.Action, req.Reason, audit.MetaFromEcho(c))
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "verification " + req.Action + " applied",
		"verification": map[string]interface{}{
			"id":     v.ID,
			"status": v.Status,
		},
	})
}
