package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/log"
	"github.com/migoVanDingo/ed-user-management/notify"
)

// RegistrationConfig carries the registration-flow settings.
type RegistrationConfig struct {
	FrontendURL     string
	EmailFrom       string
	InviteTTL       time.Duration
	SystemInviterID string
}

// RegistrationService handles self-registration: it records a single-use
// registration invite for a verified external identity and mails the
// acceptance link. Redemption of that invite is InviteRedeemer's job.
type RegistrationService struct {
	verifier   domain.IdentityVerifier
	regInvites domain.RegistrationInviteRepository
	notifier   notify.Sender
	cfg        RegistrationConfig
	logger     log.Logger
}

func NewRegistrationService(
	verifier domain.IdentityVerifier,
	regInvites domain.RegistrationInviteRepository,
	notifier notify.Sender,
	cfg RegistrationConfig,
	logger log.Logger,
) *RegistrationService {
	return &RegistrationService{
		verifier:   verifier,
		regInvites: regInvites,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// SelfRegister verifies the bearer assertion, creates the registration
// invite, and dispatches the verification email. The invite is returned even
// when email dispatch fails, together with a DownstreamError, so the caller
// can report the partial outcome.
func (s *RegistrationService) SelfRegister(ctx context.Context, bearerToken string) (*domain.RegistrationInvite, error) {
	claims, err := s.verifier.Verify(ctx, bearerToken)
	if err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, apierrors.NewBadRequest(apierrors.CodeEmailRequired, "identity token contains no email")
	}

	token, err := NewRefreshToken()
	if err != nil {
		return nil, apierrors.FromError(err)
	}

	invite := &domain.RegistrationInvite{
		Token:      token,
		Email:      claims.Email,
		ExternalID: claims.ExternalID,
		InvitedBy:  s.cfg.SystemInviterID,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.InviteTTL),
	}
	created, err := s.regInvites.CreateInvite(ctx, invite)
	if err != nil {
		return nil, apierrors.FromError(err)
	}

	s.logger.Info(ctx, "Created self-registration invite", map[string]interface{}{
		"invite_id": created.ID,
		"email":     claims.Email,
	})

	displayName := claims.DisplayName
	if displayName == "" {
		displayName = usernameFromEmail(claims.Email)
	}
	acceptLink := fmt.Sprintf("%s/accept-invite?token=%s", strings.TrimRight(s.cfg.FrontendURL, "/"), token)
	days := int(s.cfg.InviteTTL.Hours() / 24)

	email := notify.Email{
		To:      claims.Email,
		From:    s.cfg.EmailFrom,
		Subject: "Verify your email",
		Content: fmt.Sprintf(
			"Hi %s,\n\nThanks for signing up! Please verify your email by clicking:\n\n%s\n\nThis link expires in %d days.\n",
			displayName, acceptLink, days,
		),
	}
	if err := s.notifier.Send(ctx, email); err != nil {
		s.logger.Error(ctx, "Failed to send verification email", err, map[string]interface{}{"invite_id": created.ID})
		return created, apierrors.NewDownstream(apierrors.CodeNotificationFailed, "invite created but failed to send email")
	}

	return created, nil
}
