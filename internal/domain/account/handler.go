package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medadmin/medadmin/internal/platform/auth"
	"github.com/medadmin/medadmin/internal/platform/middleware"
	"github.com/medadmin/medadmin/internal/platform/web"
)

// LoginFailedMessage is the only failure text a visitor ever sees.
const LoginFailedMessage = "Invalid email, password, or role."

const loginPath = "/login"

type Handler struct {
	svc      *Service
	sessions *auth.Manager
}

func NewHandler(svc *Service, sessions *auth.Manager) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

// RegisterRoutes mounts the login flow, the dashboards and the management
// pages. loginMW wraps credential submission only.
func (h *Handler) RegisterRoutes(e *echo.Echo, loginMW ...echo.MiddlewareFunc) {
	for _, p := range []string{"/", loginPath} {
		e.GET(p, h.LoginForm)
		e.POST(p, h.Login, loginMW...)
	}
	e.GET("/logout", h.Logout)

	e.GET("/admin_dashboard", h.page(web.PageAdminDashboard, "Dashboard", nil), auth.RequireView(auth.RoleAdmin, loginPath))
	e.GET("/staff_dashboard", h.page(web.PageStaffDashboard, "Dashboard", nil), auth.RequireView(auth.RoleStaff, loginPath))

	views := e.Group("", auth.RequireView("", loginPath))
	views.GET("/staff_management", h.page(web.PageStaffManagement, "Staff", []string{auth.RoleAdmin}))
	views.GET("/patient_management", h.page(web.PagePatientManagement, "Patients", []string{auth.RoleStaff}))
	views.GET("/billing_structure", h.page(web.PageBillingStructure, "Billing rates", []string{auth.RoleAdmin}))
}

func (h *Handler) LoginForm(c echo.Context) error {
	return c.Render(http.StatusOK, web.PageLogin, web.PageData{Title: "Sign in"})
}

func (h *Handler) Login(c echo.Context) error {
	email := middleware.SanitizeString(c.FormValue("email"))
	password := c.FormValue("password")
	role := middleware.SanitizeString(c.FormValue("role"))

	profile, err := h.svc.Authenticate(c.Request().Context(), email, password, role)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrUpstream) {
			status = http.StatusBadGateway
		}
		return c.Render(status, web.PageLogin, web.PageData{
			Title: "Sign in",
			Error: LoginFailedMessage,
			Email: email,
		})
	}

	if _, err := h.sessions.Start(c, profile.UserID, profile.Role); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start session").SetInternal(err)
	}
	return c.Redirect(http.StatusFound, DashboardPath(profile.Role))
}

// Logout ends whatever session the request carries and always lands on the
// login page.
func (h *Handler) Logout(c echo.Context) error {
	h.sessions.End(c)
	return c.Redirect(http.StatusFound, loginPath)
}

// DashboardPath is where a user with role lands after signing in.
func DashboardPath(role string) string {
	if role == auth.RoleAdmin {
		return "/admin_dashboard"
	}
	return "/staff_dashboard"
}

// page renders name for the current session. writers lists the roles whose
// edits the page's data endpoints accept; others get a read-only page.
func (h *Handler) page(name, title string, writers []string) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess := auth.SessionFromContext(c.Request().Context())
		data := web.PageData{Title: title}
		if sess != nil {
			data.UserID = sess.UserID
			data.Role = sess.Role
			data.ReadOnly = writers != nil && !auth.Allowed(sess.Role, writers...)
		}
		return c.Render(http.StatusOK, name, data)
	}
}
