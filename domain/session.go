package domain

import (
	"context"
	"time"
)

// Session is a server-tracked login session. The refresh token itself is never
// stored; only its SHA-256 fingerprint is persisted, and lookups go through
// that fingerprint. A session row is immutable except for revocation and the
// last-activity touch; rotating a refresh token means inserting a new row.
type Session struct {
	ID               string     `bson:"_id,omitempty" json:"id"`
	UserID           string     `bson:"user_id" json:"user_id"`
	RefreshTokenHash string     `bson:"refresh_token_hash" json:"-"`
	ExpiresAt        time.Time  `bson:"expires_at" json:"expires_at"`
	RevokedAt        *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	LastActiveAt     time.Time  `bson:"last_active_at" json:"last_active_at"`
	IPAddress        string     `bson:"ip_address,omitempty" json:"-"`
	UserAgent        string     `bson:"user_agent,omitempty" json:"-"`
}

// Revoked reports whether the session has been explicitly revoked.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// ExpiredAt reports whether the session has expired as of now.
func (s *Session) ExpiredAt(now time.Time) bool { return !s.ExpiresAt.After(now) }

// SessionRepository is the persistence contract for sessions. A user may hold
// any number of concurrent sessions; CreateSession always inserts.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) (*Session, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	GetSessionByRefreshTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// RevokeSession sets revoked_at. Revocation is permanent.
	RevokeSession(ctx context.Context, id string) error
	// TouchLastActive updates last_active_at. Best effort; callers must not
	// fail the surrounding request when it errors.
	TouchLastActive(ctx context.Context, id string) error
	ListSessionsByUserID(ctx context.Context, userID string) ([]*Session, error)
}
