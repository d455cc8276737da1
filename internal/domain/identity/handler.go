package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/platform/apperror"
	"github.com/medvault/medvault/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/actors", h.Register)
	api.GET("/actors/me", h.Me)

	patient := api.Group("/actors/me/trusted-doctors", auth.RequireRole(auth.RolePatient))
	patient.GET("", h.ListTrustedDoctors)
	patient.POST("", h.AddTrustedDoctor)
	patient.DELETE("/:doctorID", h.RemoveTrustedDoctor)
}

func (h *Handler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	id := auth.UserIDFromContext(ctx)
	role := auth.RoleFromContext(ctx)

	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Register(ctx, id, role, in)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	id := auth.UserIDFromContext(ctx)

	a, err := h.svc.GetActor(ctx, id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	// Last-login bookkeeping only; the read does not depend on it.
	_ = h.svc.RecordLogin(ctx, id)
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListTrustedDoctors(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)

	views, err := h.svc.ListTrustedDoctors(ctx, patientID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"trusted_doctors": views})
}

func (h *Handler) AddTrustedDoctor(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)

	var in struct {
		DoctorID string `json:"doctor_id"`
	}
	if err := c.Bind(&in); err != nil || in.DoctorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}

	if err := h.svc.AddTrustedDoctor(ctx, patientID, in.DoctorID); err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "trusted"})
}

func (h *Handler) RemoveTrustedDoctor(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)
	doctorID := c.Param("doctorID")

	if err := h.svc.RemoveTrustedDoctor(ctx, patientID, doctorID); err != nil {
		return apperror.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
