package billing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medadmin/medadmin/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the calculator. Staff and admins may run it.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/billing/calculate/:patientId", h.Calculate, auth.RequireRole(auth.RoleStaff))
}

func (h *Handler) Calculate(c echo.Context) error {
	bill, err := h.svc.Calculate(c.Request().Context(), c.Param("patientId"))
	if err == nil {
		return c.JSON(http.StatusOK, bill)
	}

	var noRate *NoRateError
	switch {
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrMismatchedCount):
		return echo.NewHTTPError(http.StatusBadRequest, "Number of treatments and rooms do not match")
	case errors.As(err, &noRate):
		return c.JSON(http.StatusNotFound, map[string]any{
			"error":   capitalize(noRate.Error()),
			"missing": noRate.Pairs,
		})
	case errors.Is(err, ErrMalformedRate):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Billing rate has a non-numeric cost").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to calculate bill").SetInternal(err)
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
