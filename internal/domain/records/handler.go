package records

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/domain/audit"
	"github.com/medvault/medvault/internal/platform/apperror"
	"github.com/medvault/medvault/internal/platform/auth"
	"github.com/medvault/medvault/pkg/pagination"
)

type emergencyKey struct{}

type Handler struct {
	svc             *Service
	emergencySecret []byte
}

func NewHandler(svc *Service, emergencySecret []byte) *Handler {
	return &Handler{svc: svc, emergencySecret: emergencySecret}
}

// RegisterRoutes takes the bearer-token middleware explicitly because the
// read endpoints also honor the emergency bypass token, which arrives as a
// query parameter instead of an Authorization header.
func (h *Handler) RegisterRoutes(api *echo.Group, jwtMW echo.MiddlewareFunc) {
	patient := auth.RequireRole(auth.RolePatient)

	api.POST("/records", h.Create, jwtMW, patient)
	api.GET("/records", h.ListOwn, jwtMW, patient)
	api.PATCH("/records/:id", h.Update, jwtMW, patient)
	api.PATCH("/records/:id/emergency-visibility", h.SetEmergencyVisibility, jwtMW, patient)
	api.DELETE("/records/:id", h.Delete, jwtMW, patient)

	api.GET("/records/:id", h.View, h.emergencyOr(jwtMW))
	api.GET("/records/:id/files/:ref", h.DownloadFile, h.emergencyOr(jwtMW))

	api.GET("/patients/:patientId/records", h.ListForPatient, jwtMW, auth.RequireRole(auth.RoleDoctor))
}

// emergencyOr admits a request carrying a valid emergency token without a
// bearer token; everything else goes through the normal token check.
func (h *Handler) emergencyOr(jwtMW echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := c.QueryParam("emergency")
			if tokenStr == "" {
				return jwtMW(next)(c)
			}
			claims, err := auth.VerifyEmergencyToken(h.emergencySecret, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid emergency token")
			}
			ctx := context.WithValue(c.Request().Context(), emergencyKey{}, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// accessorFromContext resolves who is reading. Emergency accessors carry no
// actor ID.
func accessorFromContext(ctx context.Context) Accessor {
	if claims, ok := ctx.Value(emergencyKey{}).(*auth.EmergencyClaims); ok {
		return Accessor{Name: claims.Name, Emergency: true}
	}
	return Accessor{ID: auth.UserIDFromContext(ctx), Role: auth.RoleFromContext(ctx)}
}

// Create accepts a multipart form: metadata fields plus attachments under
// "files".
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}

	in := CreateInput{
		Title:       formValue(form.Value, "title"),
		Description: formValue(form.Value, "description"),
		Category:    formValue(form.Value, "category"),
	}
	if v := formValue(form.Value, "record_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "record_date must be RFC 3339")
		}
		in.RecordDate = t
	}
	if v := formValue(form.Value, "is_emergency_visible"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "is_emergency_visible must be a boolean")
		}
		in.IsEmergencyVisible = b
	}

	for _, fh := range form.File["files"] {
		src, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file "+fh.Filename)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file "+fh.Filename)
		}
		in.Uploads = append(in.Uploads, FileUpload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	rec, err := h.svc.Create(ctx, patientID, in)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func formValue(values map[string][]string, key string) string {
	if v, ok := values[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h *Handler) ListOwn(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListOwn(ctx, auth.UserIDFromContext(ctx), c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if items == nil {
		items = []*MedicalRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListForPatient(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListForDoctor(ctx,
		auth.UserIDFromContext(ctx), c.Param("patientId"), c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if items == nil {
		items = []*MedicalRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) View(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	rec, err := h.svc.View(ctx, accessorFromContext(ctx), id, audit.MetaFromEcho(c))
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DownloadFile(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	meta, data, err := h.svc.Download(ctx, accessorFromContext(ctx), id, c.Param("ref"), audit.MetaFromEcho(c))
	if err != nil {
		return apperror.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+meta.FileName+`"`)
	return c.Blob(http.StatusOK, meta.ContentType, data)
}

type updateRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	RecordDate  *time.Time `json:"record_date"`
}

func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := h.svc.Update(ctx, auth.UserIDFromContext(ctx), id, UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		RecordDate:  req.RecordDate,
	})
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

func (h *Handler) SetEmergencyVisibility(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req visibilityRequest
	if err := c.Bind(&req); err != nil || req.Visible == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "visible is required")
	}

	rec, err := h.svc.SetEmergencyVisibility(ctx, auth.UserIDFromContext(ctx), id, *req.Visible)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":                   rec.ID,
		"is_emergency_visible": rec.IsEmergencyVisible,
	})
}

func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.svc.Delete(ctx, auth.UserIDFromContext(ctx), id); err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "record deleted"})
}
