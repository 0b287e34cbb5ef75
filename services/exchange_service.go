package services

import (
	"context"
	"errors"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/internal/metrics"
	"github.com/migoVanDingo/ed-user-management/log"
)

// ExchangeService composes verification, resolution, invite redemption,
// event emission, session creation and token minting into the end-to-end
// exchange operation. Every step is fail-fast: a failure short-circuits all
// later steps, so no session row is ever persisted after an upstream failure.
type ExchangeService struct {
	verifier domain.IdentityVerifier
	resolver *IdentityResolver
	redeemer *InviteRedeemer
	sessions *SessionManager
	issuer   *TokenIssuer
	emitter  *VerificationEmitter
	users    domain.UserRepository
	logger   log.Logger
}

func NewExchangeService(
	verifier domain.IdentityVerifier,
	resolver *IdentityResolver,
	redeemer *InviteRedeemer,
	sessions *SessionManager,
	issuer *TokenIssuer,
	emitter *VerificationEmitter,
	users domain.UserRepository,
	logger log.Logger,
) *ExchangeService {
	return &ExchangeService{
		verifier: verifier,
		resolver: resolver,
		redeemer: redeemer,
		sessions: sessions,
		issuer:   issuer,
		emitter:  emitter,
		users:    users,
		logger:   logger,
	}
}

// ExchangeInput carries the request-scoped inputs of an exchange.
type ExchangeInput struct {
	BearerToken     string
	TeamInviteToken string
	IPAddress       string
	UserAgent       string
}

// ExchangeResult is the assembled outcome of a successful exchange or login.
type ExchangeResult struct {
	User         *domain.User
	Session      *domain.Session
	AccessToken  string
	RefreshToken string
	Membership   *domain.OrganizationMembership
	Invite       *domain.OrganizationInvite
}

// Exchange turns a verified external identity assertion into an internal
// session, optionally consuming a team invite on the way.
func (s *ExchangeService) Exchange(ctx context.Context, input ExchangeInput) (*ExchangeResult, error) {
	result, err := s.exchange(ctx, input)
	if err != nil {
		metrics.ExchangeFailureTotal.Inc()
		return nil, err
	}
	metrics.ExchangeSuccessTotal.Inc()
	return result, nil
}

func (s *ExchangeService) exchange(ctx context.Context, input ExchangeInput) (*ExchangeResult, error) {
	claims, err := s.verifier.Verify(ctx, input.BearerToken)
	if err != nil {
		return nil, err
	}

	var invite *domain.OrganizationInvite
	if input.TeamInviteToken != "" {
		invite, err = s.redeemer.CheckPendingInvite(ctx, input.TeamInviteToken, claims.Email)
		if err != nil {
			return nil, err
		}
	}

	resolution, err := s.resolver.Resolve(ctx, claims, invite)
	if err != nil {
		return nil, err
	}
	user := resolution.User

	var membership *domain.OrganizationMembership
	if invite != nil {
		membership, err = s.redeemer.FinalizeTeamInvite(ctx, invite, user.ID)
		if err != nil {
			return nil, err
		}
		invite.Status = domain.InviteStatusAccepted
		invite.AcceptedBy = user.ID
	}

	s.emitter.EmitIfNewlyVerified(ctx, user, resolution.WasVerifiedBefore, resolution.Created)

	session, refreshToken, err := s.sessions.CreateSession(ctx, user.ID, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.issuer.MintAccessToken(user.ID, session.ID)
	if err != nil {
		return nil, apierrors.FromError(err)
	}

	return &ExchangeResult{
		User:         user,
		Session:      session,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Membership:   membership,
		Invite:       invite,
	}, nil
}

// Login authenticates an already-registered user: the external assertion must
// map to an existing, verified user. No user is created and no invite is
// consumed on this path.
func (s *ExchangeService) Login(ctx context.Context, input ExchangeInput) (*ExchangeResult, error) {
	claims, err := s.verifier.Verify(ctx, input.BearerToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByExternalID(ctx, claims.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewAuthError(apierrors.CodeUserNotFound, "user not found")
		}
		return nil, apierrors.FromError(err)
	}
	if !user.IsVerified {
		return nil, apierrors.NewAuthError(apierrors.CodeEmailNotVerified, "user not verified")
	}

	session, refreshToken, err := s.sessions.CreateSession(ctx, user.ID, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.issuer.MintAccessToken(user.ID, session.ID)
	if err != nil {
		return nil, apierrors.FromError(err)
	}

	return &ExchangeResult{
		User:         user,
		Session:      session,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// SessionView is the outcome of validating a refresh token from cookies.
type SessionView struct {
	User        *domain.User
	Session     *domain.Session
	AccessToken string
}

// ValidateSession authenticates a request by its refresh_token cookie value,
// reissues a fresh access token, and touches session activity.
func (s *ExchangeService) ValidateSession(ctx context.Context, refreshToken string) (*SessionView, error) {
	session, err := s.sessions.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Error(ctx, "User not found for valid session", nil, map[string]interface{}{
				"session_id": session.ID,
				"user_id":    session.UserID,
			})
			return nil, apierrors.NewAuthError(apierrors.CodeUserNotFound, "user not found")
		}
		return nil, apierrors.FromError(err)
	}

	s.sessions.TouchLastActive(ctx, session.ID)

	accessToken, err := s.issuer.MintAccessToken(user.ID, session.ID)
	if err != nil {
		return nil, apierrors.FromError(err)
	}

	return &SessionView{User: user, Session: session, AccessToken: accessToken}, nil
}

// Logout revokes the session named by the refresh token. An unknown token is
// an authentication failure; an expired-but-known session still gets revoked
// so its cookies cannot be replayed.
func (s *ExchangeService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessions.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		// Lazy expiry inside validation already revoked an expired session;
		// treat that as a completed logout.
		if apierrors.IsKind(err, apierrors.KindAuth) {
			var apiErr *apierrors.Error
			if errors.As(err, &apiErr) && (apiErr.Code == apierrors.CodeSessionExpired || apiErr.Code == apierrors.CodeSessionRevoked) {
				return nil
			}
		}
		return err
	}
	return s.sessions.Revoke(ctx, session.ID)
}
