package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apierrors "github.com/migoVanDingo/ed-user-management/errors"
)

// AccessClaims are the claims carried by an access token. The token is
// stateless: possession of a validly signed, unexpired token is the whole
// proof, no store lookup happens on verification.
type AccessClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints short-lived signed access tokens and generates the
// opaque refresh secrets tracked by the session store.
type TokenIssuer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

// NewTokenIssuer creates a TokenIssuer signing with HS256.
func NewTokenIssuer(secret, issuer string, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

// AccessTokenTTL returns the configured access token lifetime.
func (t *TokenIssuer) AccessTokenTTL() time.Duration { return t.accessTTL }

// MintAccessToken signs an access token bound to the given user and session.
func (t *TokenIssuer) MintAccessToken(userID, sessionID string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies the signature and standard claims of an access
// token and returns its claims.
func (t *TokenIssuer) ParseAccessToken(tokenValue string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenValue, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, apierrors.NewAuthError(apierrors.CodeInvalidIdentity, "invalid access token")
	}
	return claims, nil
}

// refreshTokenBytes gives the refresh secret 256 bits of entropy.
const refreshTokenBytes = 32

// NewRefreshToken generates a high-entropy opaque refresh secret. The
// plaintext goes to the client once; only its fingerprint is persisted.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 fingerprint of a token as lowercase hex.
// Invite tokens and refresh tokens are stored and looked up by fingerprint,
// never in cleartext.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
