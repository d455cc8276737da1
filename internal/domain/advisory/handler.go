package advisory

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/domain/audit"
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
	g := api.Group("/advisory", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	g.POST("/analyze", h.Analyze)
	g.GET("/usage", h.Usage)
}

func (h *Handler) Analyze(c echo.Context) error {
	ctx := c.Request().Context()

	var in AnalyzeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Analyze(ctx,
		auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), in, audit.MetaFromEcho(c))
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Usage(c echo.Context) error {
	ctx := c.Request().Context()

	usage, err := h.svc.Usage(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, usage)
}
