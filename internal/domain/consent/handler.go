package consent

import (
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
	api.POST("/access-requests", h.Create, auth.RequireRole(auth.RoleDoctor))
	api.GET("/access-requests", h.List, auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	api.GET("/access-requests/:id", h.Get, auth.RequireRole(auth.RoleDoctor, auth.RolePatient, auth.RoleAdmin))
	api.PATCH("/access-requests/:id", h.Respond, auth.RequireRole(auth.RolePatient))

	admin := api.Group("/admin/access-requests", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListAll)
}

func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	doctorID := auth.UserIDFromContext(ctx)

	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cr, patient, err := h.svc.Create(ctx, doctorID, in, audit.MetaFromEcho(c))
	if err != nil {
		return apperror.HTTPError(err)
	}

	message := "Access request sent to patient. Awaiting approval."
	if cr.AutoApproved {
		message = "Access auto-approved (trusted doctor)"
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"access_request": map[string]interface{}{
			"id":     cr.ID,
			"status": cr.Status,
			"patient": map[string]string{
				"id":    patient.ID,
				"name":  patient.DisplayName(),
				"email": patient.Email,
			},
			"auto_approved": cr.AutoApproved,
			"expires_at":    cr.ExpiresAt,
		},
		"message": message,
	})
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	cr, err := h.svc.Get(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cr)
}

// List returns the caller's own requests: the doctor side or the patient
// side depending on role.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actorID := auth.UserIDFromContext(ctx)
	pg := pagination.FromContext(c)
	status := c.QueryParam("status")

	var (
		items []*ConsentRequest
		total int
		err   error
	)
	switch auth.RoleFromContext(ctx) {
	case auth.RoleDoctor:
		items, total, err = h.svc.ListForDoctor(ctx, actorID, status, pg.Limit, pg.Offset)
	case auth.RolePatient:
		items, total, err = h.svc.ListForPatient(ctx, actorID, status, pg.Limit, pg.Offset)
	default:
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	if err != nil {
		return apperror.HTTPError(err)
	}
	if items == nil {
		items = []*ConsentRequest{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAll(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListAll(ctx, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if items == nil {
		items = []*ConsentRequest{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type respondRequest struct {
	Action       string `json:"action"`
	DurationDays int    `json:"duration_days"`
	Reason       string `json:"reason"`
	AddToTrusted bool   `json:"add_to_trusted"`
}

// Respond lets the target patient decide: approve, reject, or revoke an
// already-approved grant.
func (h *Handler) Respond(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var cr *ConsentRequest
	switch req.Action {
	case "approve":
		cr, err = h.svc.Approve(ctx, patientID, id, req.DurationDays, req.AddToTrusted, audit.MetaFromEcho(c))
	case "reject":
		cr, err = h.svc.Reject(ctx, patientID, id, req.Reason, audit.MetaFromEcho(c))
	case "revoke":
		cr, err = h.svc.Revoke(ctx, patientID, id, audit.MetaFromEcho(c))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid action")
	}
	if err != nil {
		return apperror.HTTPError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "access request " + req.Action + " applied",
		"access_request": map[string]interface{}{
			"id":          cr.ID,
			"status":      cr.Status,
			"expires_at":  cr.ExpiresAt,
			"approved_at": cr.ApprovedAt,
			"rejected_at": cr.RejectedAt,
		},
	})
}
