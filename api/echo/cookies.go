package echo

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"

	// refreshCookiePath scopes the long-lived secret to the auth endpoints
	// (session validation and logout) so it is not replayed on every request.
	refreshCookiePath = "/auth"
)

// CookieSettings controls the security attributes of the auth cookies. Local
// mode relaxes them so browser dev setups without TLS keep working.
type CookieSettings struct {
	Local      bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s CookieSettings) sameSite() http.SameSite {
	if s.Local {
		return http.SameSiteLaxMode
	}
	return http.SameSiteStrictMode
}

func (s CookieSettings) setAuthCookies(c echo.Context, accessToken, refreshToken string) {
	c.SetCookie(&http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(s.AccessTTL.Seconds()),
		HttpOnly: !s.Local,
		Secure:   !s.Local,
		SameSite: s.sameSite(),
	})
	c.SetCookie(&http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		MaxAge:   int(s.RefreshTTL.Seconds()),
		HttpOnly: !s.Local,
		Secure:   !s.Local,
		SameSite: s.sameSite(),
	})
}

func (s CookieSettings) setAccessCookie(c echo.Context, accessToken string) {
	c.SetCookie(&http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(s.AccessTTL.Seconds()),
		HttpOnly: !s.Local,
		Secure:   !s.Local,
		SameSite: s.sameSite(),
	})
}

func (s CookieSettings) clearAuthCookies(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: !s.Local,
		Secure:   !s.Local,
		SameSite: s.sameSite(),
	})
	c.SetCookie(&http.Cookie{
		Name:     refreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: !s.Local,
		Secure:   !s.Local,
		SameSite: s.sameSite(),
	})
}
