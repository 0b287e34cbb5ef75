package services

import (
	"context"
	"errors"
	"strings"

	"github.com/migoVanDingo/ed-user-management/config"
	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/internal/metrics"
	"github.com/migoVanDingo/ed-user-management/log"
)

// IdentityResolver finds or creates the internal user for a verified external
// identity and applies the email-verification policy.
type IdentityResolver struct {
	users            domain.UserRepository
	policy           string
	trustedProviders map[string]struct{}
	logger           log.Logger
}

// NewIdentityResolver creates an IdentityResolver. policy must be one of
// config.PolicyStrict or config.PolicyTrustedExtended.
func NewIdentityResolver(users domain.UserRepository, policy string, trustedProviders []string, logger log.Logger) *IdentityResolver {
	trusted := make(map[string]struct{}, len(trustedProviders))
	for _, p := range trustedProviders {
		trusted[p] = struct{}{}
	}
	return &IdentityResolver{
		users:            users,
		policy:           policy,
		trustedProviders: trusted,
		logger:           logger,
	}
}

// Resolution is the outcome of resolving an external identity.
type Resolution struct {
	User *domain.User
	// Created is true when this call created the user.
	Created bool
	// WasVerifiedBefore is the verification state observed before this call.
	// False for just-created users.
	WasVerifiedBefore bool
}

// Resolve finds or creates the user for the given claims. pendingInvite, when
// non-nil, is a validated team invite accompanying the exchange; under the
// trusted-extended policy it counts as proof of email ownership. An
// unverified user can never come out of Resolve: either the verification
// condition holds and the user ends up verified, or the call fails.
func (r *IdentityResolver) Resolve(ctx context.Context, claims *domain.IdentityClaims, pendingInvite *domain.OrganizationInvite) (*Resolution, error) {
	effectiveVerified := r.verificationHolds(claims, pendingInvite)

	user, err := r.users.GetUserByExternalID(ctx, claims.ExternalID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		user, err = r.createUser(ctx, claims, effectiveVerified)
		if err != nil {
			return nil, err
		}
		created = true
	default:
		return nil, apierrors.FromError(err)
	}

	wasVerifiedBefore := !created && user.IsVerified

	if !user.IsVerified {
		if !effectiveVerified {
			return nil, apierrors.NewAuthError(apierrors.CodeEmailNotVerified, "email not verified")
		}
		user, err = r.users.SetVerified(ctx, user.ID)
		if err != nil {
			return nil, apierrors.FromError(err)
		}
		metrics.UsersVerifiedTotal.Inc()
	}

	return &Resolution{User: user, Created: created, WasVerifiedBefore: wasVerifiedBefore}, nil
}

func (r *IdentityResolver) createUser(ctx context.Context, claims *domain.IdentityClaims, verified bool) (*domain.User, error) {
	if claims.Email == "" {
		return nil, apierrors.NewBadRequest(apierrors.CodeEmailRequired, "email required to create user")
	}

	user := &domain.User{
		ExternalID: claims.ExternalID,
		Email:      claims.Email,
		Username:   usernameFromEmail(claims.Email),
		IsVerified: verified,
	}
	created, err := r.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost the find-or-create race; the winner's row is the user.
			return r.users.GetUserByExternalID(ctx, claims.ExternalID)
		}
		return nil, apierrors.FromError(err)
	}

	r.logger.Info(ctx, "Created new user from external identity", map[string]interface{}{
		"user_id":  created.ID,
		"provider": claims.Provider,
	})
	metrics.UsersCreatedTotal.Inc()
	return created, nil
}

// verificationHolds evaluates the configured verification policy. STRICT
// accepts only the provider's own email_verified flag; TRUSTED_EXTENDED also
// accepts a trusted provider with an email present, or a validated invite.
func (r *IdentityResolver) verificationHolds(claims *domain.IdentityClaims, pendingInvite *domain.OrganizationInvite) bool {
	if claims.EmailVerified {
		return true
	}
	if r.policy != config.PolicyTrustedExtended {
		return false
	}
	if _, trusted := r.trustedProviders[claims.Provider]; trusted && claims.Email != "" {
		return true
	}
	return pendingInvite != nil
}

func usernameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
