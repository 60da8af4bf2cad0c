// Package api exposes the session engine to a browser UI over HTTP.
//
// The handler is a thin shell: every decision is made by the session
// manager, the onboarding gate and the routing guards. Access tokens never
// leave the process.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/flow"
	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/logger"
	"github.com/ashaassist/portal/onboarding"
	"github.com/ashaassist/portal/rbac"
	"github.com/ashaassist/portal/routing"
	"github.com/ashaassist/portal/session"
)

// ProviderLoginTimeout bounds how long a provider sign-in may wait for the
// browser redirect.
const ProviderLoginTimeout = 5 * time.Minute

type Handler struct {
	sessions *session.Manager
	gate     *onboarding.Gate
	guard    *routing.Guard
	rbac     *rbac.Middleware
	callback *flow.CallbackReceiver
}

// NewHandler creates the shell handler. callback may be nil when federated
// sign-in is not configured.
func NewHandler(sm *session.Manager, callback *flow.CallbackReceiver) *Handler {
	gate := onboarding.NewGate(sm)
	return &Handler{
		sessions: sm,
		gate:     gate,
		guard:    routing.NewGuard(gate),
		rbac:     rbac.NewMiddleware(nil, sm),
		callback: callback,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/session", h.HandleSession)
	g.POST("/login", h.HandleLogin)
	g.POST("/login/provider", h.HandleProviderLogin)
	g.GET("/login/provider/pending", h.HandleProviderPending)
	g.POST("/register", h.HandleRegister)
	g.POST("/check-email", h.HandleCheckEmail)
	g.POST("/logout", h.HandleLogout)

	// Protected routes
	g.PUT("/profile", h.HandleUpdateProfile, h.rbac.RequireSession)
	patients := g.Group("/onboarding", h.rbac.RequireRole(identity.RolePatient))
	patients.POST("", h.HandleOnboarding)
	patients.POST("/skip", h.HandleOnboardingSkip)

	if h.callback != nil {
		e.GET("/auth/callback", echo.WrapHandler(h.callback))
	}

	// Screens
	for _, path := range []string{"/", "/login", "/register"} {
		e.GET(path, h.HandlePublicScreen)
	}
	e.GET(routing.DashboardPath, h.HandleDashboard)
	for _, path := range []string{
		"/maternity-dashboard", "/maternity/*",
		"/palliative-dashboard", "/palliative/*",
		"/asha-dashboard", "/asha/*",
		"/admin/*",
		"/profile",
	} {
		e.GET(path, h.HandleProtectedScreen)
	}
}

type sessionView struct {
	Status             string            `json:"status"`
	Authenticated      bool              `json:"authenticated"`
	User               *identity.Profile `json:"user,omitempty"`
	Route              string            `json:"route"`
	Path               string            `json:"path,omitempty"`
	OnboardingRequired bool              `json:"onboardingRequired"`
}

func (h *Handler) view(s session.State) sessionView {
	d := routing.Decide(s)
	return sessionView{
		Status:             s.Status.String(),
		Authenticated:      s.Authenticated(),
		User:               s.Profile,
		Route:              d.String(),
		Path:               routing.Path(d),
		OnboardingRequired: h.gate.RequiredFor(s),
	}
}

func (h *Handler) HandleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.view(h.sessions.Current()))
}

func (h *Handler) HandleLogin(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	if err := h.sessions.Login(c.Request().Context(), body.Email, body.Password); err != nil {
		return h.Fail(c, err)
	}
	return c.JSON(http.StatusOK, h.view(h.sessions.Current()))
}

// HandleProviderLogin starts a federated sign-in. The sign-in completes when
// the provider redirects to /auth/callback; the response carries the URL
// the browser must open.
func (h *Handler) HandleProviderLogin(c echo.Context) error {
	if h.callback == nil {
		return h.Fail(c, domain.NewError(domain.ReasonProviderDenied, "federated sign-in is not configured", nil))
	}

	errc := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ProviderLoginTimeout)
		defer cancel()
		err := h.sessions.LoginWithProvider(ctx)
		if err != nil {
			logger.Log.Info("provider sign-in ended", zap.String("reason", string(domain.ReasonOf(err))))
		}
		errc <- err
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(2 * time.Second)
	for {
		if u, ok := h.callback.Pending(); ok {
			return c.JSON(http.StatusAccepted, map[string]string{"authorizationUrl": u})
		}
		select {
		case err := <-errc:
			if err != nil {
				return h.Fail(c, err)
			}
			return c.JSON(http.StatusOK, h.view(h.sessions.Current()))
		case <-timeout:
			return c.JSON(http.StatusAccepted, map[string]string{"status": "pending"})
		case <-ticker.C:
		}
	}
}

func (h *Handler) HandleProviderPending(c echo.Context) error {
	if h.callback != nil {
		if u, ok := h.callback.Pending(); ok {
			return c.JSON(http.StatusOK, map[string]string{"authorizationUrl": u})
		}
	}
	return h.Error(c, http.StatusNotFound, "No sign-in in progress", nil)
}

func (h *Handler) HandleRegister(c echo.Context) error {
	var form identity.RegistrationForm
	if err := c.Bind(&form); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.sessions.Register(c.Request().Context(), form); err != nil {
		return h.Fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Registration successful. Please log in."})
}

func (h *Handler) HandleCheckEmail(c echo.Context) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	available := h.sessions.CheckEmailAvailability(c.Request().Context(), body.Email)
	return c.JSON(http.StatusOK, map[string]bool{"available": available})
}

func (h *Handler) HandleLogout(c echo.Context) error {
	if err := h.sessions.Logout(c.Request().Context()); err != nil {
		return h.Error(c, http.StatusServiceUnavailable, "Logout pending", err)
	}
	return c.JSON(http.StatusOK, h.view(h.sessions.Current()))
}

func (h *Handler) HandleUpdateProfile(c echo.Context) error {
	var patch identity.ProfilePatch
	if err := c.Bind(&patch); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	p, err := h.sessions.UpdateProfile(c.Request().Context(), patch)
	if err != nil {
		return h.Fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"user": p})
}

func (h *Handler) HandleOnboarding(c echo.Context) error {
	var body struct {
		Category string `json:"category"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	category, ok := identity.ParseCareCategory(body.Category)
	if !ok {
		return h.Fail(c, domain.NewError(domain.ReasonValidation, "unknown care program", nil))
	}
	if _, err := h.gate.Satisfy(c.Request().Context(), category); err != nil {
		return h.Fail(c, err)
	}
	return c.JSON(http.StatusOK, h.view(h.sessions.Current()))
}

func (h *Handler) HandleOnboardingSkip(c echo.Context) error {
	if err := h.gate.Skip(); err != nil {
		return h.Fail(c, err)
	}
	return c.JSON(http.StatusOK, h.view(h.sessions.Current()))
}

func (h *Handler) HandlePublicScreen(c echo.Context) error {
	return h.render(c, h.guard.Public(h.sessions.Current()))
}

func (h *Handler) HandleDashboard(c echo.Context) error {
	return h.render(c, h.guard.Dashboard(h.sessions.Current()))
}

func (h *Handler) HandleProtectedScreen(c echo.Context) error {
	return h.render(c, h.guard.Protected(h.sessions.Current(), c.Request().URL.Path))
}

func (h *Handler) render(c echo.Context, o routing.Outcome) error {
	switch {
	case o.Pending:
		return c.JSON(http.StatusAccepted, map[string]string{"screen": "loading"})
	case o.Onboarding:
		return c.JSON(http.StatusOK, map[string]string{"screen": "onboarding"})
	case o.Allow:
		return c.JSON(http.StatusOK, map[string]string{"screen": c.Request().URL.Path})
	}
	return c.Redirect(http.StatusFound, routing.Path(o.Redirect))
}

var reasonStatus = map[domain.Reason]int{
	domain.ReasonInvalidCredentials:  http.StatusUnauthorized,
	domain.ReasonAccountDisabled:     http.StatusForbidden,
	domain.ReasonAccountNotFound:     http.StatusNotFound,
	domain.ReasonAccountExists:       http.StatusConflict,
	domain.ReasonProviderDenied:      http.StatusUnauthorized,
	domain.ReasonNetwork:             http.StatusBadGateway,
	domain.ReasonServer:              http.StatusBadGateway,
	domain.ReasonValidation:          http.StatusBadRequest,
	domain.ReasonSessionExpired:      http.StatusUnauthorized,
	domain.ReasonConcurrentOperation: http.StatusConflict,
	domain.ReasonInvalidState:        http.StatusConflict,
}

// Fail writes a typed engine error.
func (h *Handler) Fail(c echo.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return h.Error(c, http.StatusRequestTimeout, "Request cancelled", err)
	}
	reason := domain.ReasonOf(err)
	code, ok := reasonStatus[reason]
	if !ok {
		code = http.StatusInternalServerError
	}
	resp := map[string]any{
		"status": http.StatusText(code),
		"code":   code,
		"reason": reason,
		"error":  err.Error(),
	}
	return c.JSON(code, resp)
}

// Error writes a shell-level error.
func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	resp := map[string]any{
		"status": message,
		"code":   code,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(code, resp)
}
