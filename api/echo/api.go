package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/middleware"
	"github.com/migoVanDingo/ed-user-management/services"
)

// UserManagementAPI holds the HTTP boundary dependencies.
type UserManagementAPI struct {
	exchange     *services.ExchangeService
	redeemer     *services.InviteRedeemer
	registration *services.RegistrationService
	users        *services.UserService
	sessions     *services.SessionManager
	auth         *middleware.AccessTokenAuth
	cookies      CookieSettings
	healthPing   func(ctx echo.Context) error
}

// NewUserManagementAPI initializes the API.
func NewUserManagementAPI(
	exchange *services.ExchangeService,
	redeemer *services.InviteRedeemer,
	registration *services.RegistrationService,
	users *services.UserService,
	sessions *services.SessionManager,
	auth *middleware.AccessTokenAuth,
	cookies CookieSettings,
	healthPing func(ctx echo.Context) error,
) *UserManagementAPI {
	return &UserManagementAPI{
		exchange:     exchange,
		redeemer:     redeemer,
		registration: registration,
		users:        users,
		sessions:     sessions,
		auth:         auth,
		cookies:      cookies,
		healthPing:   healthPing,
	}
}

// RegisterRoutes registers all routes on the echo instance.
func (a *UserManagementAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/exchange", a.ExchangeHandler)
	e.POST("/auth/login", a.LoginHandler)
	e.GET("/auth/session", a.SessionHandler)
	e.POST("/auth/logout", a.LogoutHandler)
	e.GET("/auth/invite", a.ValidateInviteHandler)
	e.POST("/auth/register", a.SelfRegisterHandler)
	e.GET("/auth/verify", a.VerifyAccountHandler)

	users := e.Group("/user", a.auth.RequireAccessToken)
	users.POST("", a.CreateUserHandler)
	users.GET("", a.ListUsersHandler)
	users.GET("/sessions", a.ListSessionsHandler)
	users.GET("/:id", a.GetUserHandler)
	users.PATCH("/:id", a.UpdateUserHandler)
	users.DELETE("/:id", a.DeleteUserHandler)

	e.GET("/healthz", a.HealthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// respondError renders the structured {message, code} payload with the
// error's mapped status.
func respondError(c echo.Context, err error) error {
	apiErr := apierrors.FromError(err)
	return c.JSON(apiErr.Status(), apiErr)
}

func respond(c echo.Context, status int, message string, data echo.Map) error {
	return c.JSON(status, echo.Map{
		"message": message,
		"data":    data,
	})
}

func bearerOrError(c echo.Context) (string, error) {
	token, ok := middleware.BearerToken(c.Request())
	if !ok {
		return "", apierrors.NewAuthError(apierrors.CodeMissingAuthHeader, "missing or invalid Authorization header")
	}
	return token, nil
}

// ExchangeHandler turns an external identity assertion into an internal
// session, optionally consuming the invite named by X-Team-Invite-Token.
func (a *UserManagementAPI) ExchangeHandler(c echo.Context) error {
	bearer, err := bearerOrError(c)
	if err != nil {
		return respondError(c, err)
	}

	result, err := a.exchange.Exchange(c.Request().Context(), services.ExchangeInput{
		BearerToken:     bearer,
		TeamInviteToken: c.Request().Header.Get("X-Team-Invite-Token"),
		IPAddress:       c.RealIP(),
		UserAgent:       c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, err)
	}

	a.cookies.setAuthCookies(c, result.AccessToken, result.RefreshToken)

	data := echo.Map{"user": result.User}
	if result.Membership != nil {
		data["membership"] = result.Membership
	}
	if result.Invite != nil {
		data["invite_status"] = result.Invite.Status
	}
	return respond(c, http.StatusOK, "Login successful", data)
}

// LoginHandler authenticates an existing verified user.
func (a *UserManagementAPI) LoginHandler(c echo.Context) error {
	bearer, err := bearerOrError(c)
	if err != nil {
		return respondError(c, err)
	}

	result, err := a.exchange.Login(c.Request().Context(), services.ExchangeInput{
		BearerToken: bearer,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, err)
	}

	a.cookies.setAuthCookies(c, result.AccessToken, result.RefreshToken)

	return respond(c, http.StatusOK, "Login successful", echo.Map{
		"access_token": result.AccessToken,
		"user":         result.User,
	})
}

// SessionHandler validates the session named by the refresh_token cookie and
// reissues an access-token cookie. Frontend loaders call this to check
// whether the user is authenticated.
func (a *UserManagementAPI) SessionHandler(c echo.Context) error {
	refreshToken := cookieValue(c, refreshTokenCookie)

	view, err := a.exchange.ValidateSession(c.Request().Context(), refreshToken)
	if err != nil {
		return respondError(c, err)
	}

	a.cookies.setAccessCookie(c, view.AccessToken)

	return respond(c, http.StatusOK, "Session valid", echo.Map{
		"user":       view.User,
		"session_id": view.Session.ID,
	})
}

// LogoutHandler revokes the current session and clears the auth cookies.
func (a *UserManagementAPI) LogoutHandler(c echo.Context) error {
	refreshToken := cookieValue(c, refreshTokenCookie)

	if err := a.exchange.Logout(c.Request().Context(), refreshToken); err != nil {
		return respondError(c, err)
	}

	a.cookies.clearAuthCookies(c)
	return respond(c, http.StatusOK, "Logged out", nil)
}

// ValidateInviteHandler reports on a team invite without consuming it.
func (a *UserManagementAPI) ValidateInviteHandler(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return respondError(c, apierrors.NewBadRequest(apierrors.CodeMissingField, "missing token"))
	}

	validation, err := a.redeemer.InspectTeamInvite(c.Request().Context(), token)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Invite token checked", echo.Map{"invite": validation})
}

// SelfRegisterHandler creates a self-registration invite for the verified
// identity and mails the acceptance link.
func (a *UserManagementAPI) SelfRegisterHandler(c echo.Context) error {
	bearer, err := bearerOrError(c)
	if err != nil {
		return respondError(c, err)
	}

	invite, err := a.registration.SelfRegister(c.Request().Context(), bearer)
	if err != nil {
		if invite != nil && apierrors.IsKind(err, apierrors.KindDownstream) {
			apiErr := apierrors.FromError(err)
			return c.JSON(apiErr.Status(), apiErr)
		}
		return respondError(c, err)
	}

	return respond(c, http.StatusCreated, "Registration email sent; please check your inbox", echo.Map{
		"invite_id": invite.ID,
	})
}

// VerifyAccountHandler redeems a registration invite and creates the
// verified user.
func (a *UserManagementAPI) VerifyAccountHandler(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return respondError(c, apierrors.NewBadRequest(apierrors.CodeMissingField, "missing token"))
	}

	user, err := a.redeemer.RedeemRegistration(c.Request().Context(), token)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Email verified successfully", echo.Map{"user": user})
}

// HealthHandler reports liveness of the service and its store.
func (a *UserManagementAPI) HealthHandler(c echo.Context) error {
	if a.healthPing != nil {
		if err := a.healthPing(c); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func cookieValue(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
