package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/internal/metrics"
	"github.com/migoVanDingo/ed-user-management/log"
)

// SessionManager creates, validates and revokes server-tracked sessions keyed
// by an opaque refresh token.
type SessionManager struct {
	sessions   domain.SessionRepository
	refreshTTL time.Duration
	logger     log.Logger
	now        func() time.Time
}

func NewSessionManager(sessions domain.SessionRepository, refreshTTL time.Duration, logger log.Logger) *SessionManager {
	return &SessionManager{
		sessions:   sessions,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateSession inserts a new session for the user and returns it together
// with the plaintext refresh token. The plaintext leaves this function only
// toward the client; the store sees the fingerprint.
func (s *SessionManager) CreateSession(ctx context.Context, userID, ipAddress, userAgent string) (*domain.Session, string, error) {
	refreshToken, err := NewRefreshToken()
	if err != nil {
		return nil, "", apierrors.FromError(err)
	}

	now := s.now().UTC()
	session := &domain.Session{
		UserID:           userID,
		RefreshTokenHash: HashToken(refreshToken),
		ExpiresAt:        now.Add(s.refreshTTL),
		CreatedAt:        now,
		LastActiveAt:     now,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
	}
	created, err := s.sessions.CreateSession(ctx, session)
	if err != nil {
		return nil, "", apierrors.FromError(err)
	}

	s.logger.Info(ctx, "Session created", map[string]interface{}{
		"session_id": created.ID,
		"user_id":    userID,
	})
	metrics.SessionsCreatedTotal.Inc()
	return created, refreshToken, nil
}

// ValidateRefreshToken looks up the session for a presented refresh token and
// enforces revocation and lazy expiry. A session whose expires_at has passed
// is revoked as a side effect of the failed read; there is no background
// sweep in this core.
//
// The presented token is compared against the stored fingerprint in constant
// time. The lookup itself is by fingerprint, so an attacker cannot learn
// token bytes from the comparison.
func (s *SessionManager) ValidateRefreshToken(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, apierrors.NewAuthError(apierrors.CodeNotAuthenticated, "not authenticated")
	}

	presentedHash := HashToken(refreshToken)
	session, err := s.sessions.GetSessionByRefreshTokenHash(ctx, presentedHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewAuthError(apierrors.CodeNotAuthenticated, "not authenticated")
		}
		return nil, apierrors.FromError(err)
	}

	if subtle.ConstantTimeCompare([]byte(session.RefreshTokenHash), []byte(presentedHash)) != 1 {
		return nil, apierrors.NewAuthError(apierrors.CodeNotAuthenticated, "not authenticated")
	}

	if session.Revoked() {
		return nil, apierrors.NewAuthError(apierrors.CodeSessionRevoked, "session revoked")
	}

	if session.ExpiredAt(s.now()) {
		if err := s.sessions.RevokeSession(ctx, session.ID); err != nil {
			s.logger.Warn(ctx, "Failed to revoke expired session", map[string]interface{}{"session_id": session.ID})
		}
		return nil, apierrors.NewAuthError(apierrors.CodeSessionExpired, "session expired")
	}

	return session, nil
}

// Revoke marks the session as revoked. A revoked session never authenticates
// again, regardless of its expiry.
func (s *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if err := s.sessions.RevokeSession(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apierrors.NewNotFound(apierrors.CodeSessionNotFound, "unknown session")
		}
		return apierrors.FromError(err)
	}
	return nil
}

// ListUserSessions returns all sessions belonging to a user, active and
// historical alike.
func (s *SessionManager) ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	sessions, err := s.sessions.ListSessionsByUserID(ctx, userID)
	if err != nil {
		return nil, apierrors.FromError(err)
	}
	return sessions, nil
}

// TouchLastActive is a best-effort freshness update: failures are logged and
// swallowed so they never fail the surrounding request.
func (s *SessionManager) TouchLastActive(ctx context.Context, sessionID string) {
	if err := s.sessions.TouchLastActive(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "Failed to update session last_active_at", map[string]interface{}{"session_id": sessionID})
	}
}
