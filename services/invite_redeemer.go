package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/internal/metrics"
	"github.com/migoVanDingo/ed-user-management/log"
)

// InviteRedeemer validates and atomically consumes organization team invites
// and self-registration invites.
type InviteRedeemer struct {
	invites    domain.OrganizationInviteRepository
	members    domain.MembershipRepository
	regInvites domain.RegistrationInviteRepository
	users      domain.UserRepository
	logger     log.Logger
	now        func() time.Time
}

func NewInviteRedeemer(
	invites domain.OrganizationInviteRepository,
	members domain.MembershipRepository,
	regInvites domain.RegistrationInviteRepository,
	users domain.UserRepository,
	logger log.Logger,
) *InviteRedeemer {
	return &InviteRedeemer{
		invites:    invites,
		members:    members,
		regInvites: regInvites,
		users:      users,
		logger:     logger,
		now:        time.Now,
	}
}

// CheckPendingInvite validates a team invite token for a claimant without
// consuming it: the invite must exist, be PENDING, be unexpired, and carry
// the claimant's email. An expired invite is transitioned to EXPIRED here,
// on first touch, before the failure surfaces.
func (s *InviteRedeemer) CheckPendingInvite(ctx context.Context, token, claimantEmail string) (*domain.OrganizationInvite, error) {
	invite, err := s.invites.GetInviteByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewAuthError(apierrors.CodeInvalidInvite, "invalid team invite token")
		}
		return nil, apierrors.FromError(err)
	}

	if invite.Status != domain.InviteStatusPending {
		return nil, apierrors.NewAuthError(apierrors.CodeInviteNotPending, "team invite is not pending")
	}

	if invite.ExpiresAt.Before(s.now()) {
		if err := s.invites.MarkExpired(ctx, invite.ID); err != nil {
			s.logger.Warn(ctx, "Failed to mark invite expired", map[string]interface{}{"invite_id": invite.ID})
		} else {
			metrics.InvitesExpiredTotal.Inc()
		}
		return nil, apierrors.NewAuthError(apierrors.CodeInviteExpired, "team invite has expired")
	}

	if claimantEmail == "" || !strings.EqualFold(strings.TrimSpace(invite.Email), strings.TrimSpace(claimantEmail)) {
		return nil, apierrors.NewAuthError(apierrors.CodeInviteEmailMismatch, "invite email does not match current user")
	}

	return invite, nil
}

// FinalizeTeamInvite consumes a validated invite for the given user. When no
// active membership exists for the (user, organization) pair the membership
// is created together with the PENDING -> ACCEPTED transition; otherwise only
// the invite transitions. Both paths are safe to run twice.
func (s *InviteRedeemer) FinalizeTeamInvite(ctx context.Context, invite *domain.OrganizationInvite, userID string) (*domain.OrganizationMembership, error) {
	existing, err := s.members.GetActiveMembership(ctx, userID, invite.OrganizationID)
	switch {
	case err == nil:
		if err := s.invites.MarkAccepted(ctx, invite.ID, userID); err != nil {
			return nil, s.mapTransitionErr(err)
		}
		metrics.InvitesRedeemedTotal.Inc()
		return existing, nil
	case errors.Is(err, domain.ErrNotFound):
		if err := s.invites.AcceptWithMembership(ctx, invite, userID); err != nil {
			return nil, s.mapTransitionErr(err)
		}
		metrics.InvitesRedeemedTotal.Inc()
		s.logger.Info(ctx, "Team invite accepted with new membership", map[string]interface{}{
			"invite_id":       invite.ID,
			"organization_id": invite.OrganizationID,
			"user_id":         userID,
		})
		return s.members.GetActiveMembership(ctx, userID, invite.OrganizationID)
	default:
		return nil, apierrors.FromError(err)
	}
}

func (s *InviteRedeemer) mapTransitionErr(err error) error {
	if errors.Is(err, domain.ErrInviteNotPending) {
		return apierrors.NewAuthError(apierrors.CodeInviteNotPending, "team invite is not pending")
	}
	if errors.Is(err, domain.ErrNotFound) {
		return apierrors.NewAuthError(apierrors.CodeInvalidInvite, "invalid team invite token")
	}
	return apierrors.FromError(err)
}

// InviteValidation is the non-consuming view of a team invite returned by the
// invite pre-check endpoint.
type InviteValidation struct {
	InviteID       string              `json:"invite_id"`
	OrganizationID string              `json:"organization_id"`
	Email          string              `json:"email"`
	Role           string              `json:"role,omitempty"`
	Status         domain.InviteStatus `json:"status"`
	ExpiresAt      time.Time           `json:"expires_at"`
	IsExpired      bool                `json:"is_expired"`
	IsValid        bool                `json:"is_valid"`
}

// InspectTeamInvite reports on a team invite without touching its state. Used
// by frontends to decide whether to show the acceptance flow.
func (s *InviteRedeemer) InspectTeamInvite(ctx context.Context, token string) (*InviteValidation, error) {
	invite, err := s.invites.GetInviteByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewNotFound(apierrors.CodeInvalidInvite, "invalid invite token")
		}
		return nil, apierrors.FromError(err)
	}

	isExpired := invite.ExpiresAt.Before(s.now())
	return &InviteValidation{
		InviteID:       invite.ID,
		OrganizationID: invite.OrganizationID,
		Email:          invite.Email,
		Role:           invite.Role,
		Status:         invite.Status,
		ExpiresAt:      invite.ExpiresAt,
		IsExpired:      isExpired,
		IsValid:        invite.Status == domain.InviteStatusPending && !isExpired,
	}, nil
}

// RedeemRegistration consumes a self-registration invite and creates the
// verified user it describes. Redemption is single-use: the compare-and-set
// in the store guarantees a second attempt fails instead of creating a
// second user.
func (s *InviteRedeemer) RedeemRegistration(ctx context.Context, token string) (*domain.User, error) {
	invite, err := s.regInvites.GetInviteByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewBadRequest(apierrors.CodeInvalidInvite, "invalid or expired token")
		}
		return nil, apierrors.FromError(err)
	}

	if invite.ExpiresAt.Before(s.now()) {
		return nil, apierrors.NewBadRequest(apierrors.CodeInviteExpired, "token has expired")
	}

	if err := s.regInvites.Redeem(ctx, invite.ID); err != nil {
		if errors.Is(err, domain.ErrInviteRedeemed) {
			return nil, apierrors.NewBadRequest(apierrors.CodeInviteRedeemed, "token already redeemed")
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewBadRequest(apierrors.CodeInvalidInvite, "invalid or expired token")
		}
		return nil, apierrors.FromError(err)
	}

	user := &domain.User{
		ExternalID: invite.ExternalID,
		Email:      invite.Email,
		Username:   usernameFromEmail(invite.Email),
		IsVerified: true,
	}
	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, apierrors.NewBadRequest(apierrors.CodeDuplicateUser, "user already exists")
		}
		return nil, apierrors.FromError(err)
	}

	s.logger.Info(ctx, "Registration invite redeemed", map[string]interface{}{
		"invite_id": invite.ID,
		"user_id":   created.ID,
	})
	metrics.InvitesRedeemedTotal.Inc()
	metrics.UsersCreatedTotal.Inc()
	return created, nil
}
