package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"

	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/services"
)

// Context keys set by RequireAccessToken.
const (
	ContextKeyUserID    = "auth_user_id"
	ContextKeySessionID = "auth_session_id"
)

// AccessTokenAuth authenticates requests by their access-token JWT. Parsed
// claims are cached by token fingerprint until the token expires; access
// tokens are stateless, so a cached result never needs invalidation.
type AccessTokenAuth struct {
	issuer *services.TokenIssuer
	cache  *ttlcache.Cache[string, *services.AccessClaims]
}

func NewAccessTokenAuth(issuer *services.TokenIssuer) *AccessTokenAuth {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *services.AccessClaims](issuer.AccessTokenTTL()),
		ttlcache.WithDisableTouchOnHit[string, *services.AccessClaims](),
	)
	go cache.Start()

	return &AccessTokenAuth{issuer: issuer, cache: cache}
}

// RequireAccessToken is echo middleware rejecting requests without a valid
// bearer access token. On success the user and session ids are placed on the
// echo context.
func (a *AccessTokenAuth) RequireAccessToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := BearerToken(c.Request())
		if !ok {
			apiErr := apierrors.NewAuthError(apierrors.CodeMissingAuthHeader, "missing or invalid Authorization header")
			return c.JSON(apiErr.Status(), apiErr)
		}

		claims, err := a.validate(token)
		if err != nil {
			apiErr := apierrors.FromError(err)
			return c.JSON(apiErr.Status(), apiErr)
		}

		c.Set(ContextKeyUserID, claims.Subject)
		c.Set(ContextKeySessionID, claims.SessionID)
		return next(c)
	}
}

func (a *AccessTokenAuth) validate(token string) (*services.AccessClaims, error) {
	key := services.HashToken(token)
	if item := a.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	claims, err := a.issuer.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		a.cache.Set(key, claims, ttl)
	}
	return claims, nil
}

// BearerToken extracts the bearer credential from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
