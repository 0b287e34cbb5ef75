package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/internal/testutil"
)

func newRegistrationService(verifier *testutil.StubVerifier, regInvites *testutil.FakeRegistrationInviteRepository, sender *testutil.RecordingSender) *RegistrationService {
	return NewRegistrationService(verifier, regInvites, sender, RegistrationConfig{
		FrontendURL:     "https://app.example.com/",
		EmailFrom:       "no-reply@example.com",
		InviteTTL:       7 * 24 * time.Hour,
		SystemInviterID: "system",
	}, testutil.NewTestLogger())
}

func TestSelfRegisterSendsVerificationEmail(t *testing.T) {
	verifier := &testutil.StubVerifier{Claims: &domain.IdentityClaims{
		ExternalID:  "ext-1",
		Email:       "dana@example.com",
		DisplayName: "Dana",
	}}
	regInvites := testutil.NewFakeRegistrationInviteRepository()
	sender := &testutil.RecordingSender{}

	invite, err := newRegistrationService(verifier, regInvites, sender).
		SelfRegister(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", invite.Email)
	assert.Equal(t, "ext-1", invite.ExternalID)
	assert.Equal(t, "system", invite.InvitedBy)
	assert.False(t, invite.Redeemed)

	emails := sender.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "dana@example.com", emails[0].To)
	assert.Equal(t, "no-reply@example.com", emails[0].From)
	assert.Contains(t, emails[0].Content, "Dana")
	assert.Contains(t, emails[0].Content, "https://app.example.com/accept-invite?token=")

	stored, err := regInvites.GetInviteByToken(context.Background(), invite.Token)
	require.NoError(t, err)
	assert.Equal(t, invite.ID, stored.ID)
}

func TestSelfRegisterEmailDispatchFailure(t *testing.T) {
	verifier := &testutil.StubVerifier{Claims: &domain.IdentityClaims{
		ExternalID: "ext-1",
		Email:      "dana@example.com",
	}}
	regInvites := testutil.NewFakeRegistrationInviteRepository()
	sender := &testutil.RecordingSender{Err: assert.AnError}

	invite, err := newRegistrationService(verifier, regInvites, sender).
		SelfRegister(context.Background(), "id-token")
	assertAPIError(t, err, apierrors.KindDownstream, apierrors.CodeNotificationFailed)

	// The invite survives the failed dispatch so the flow can be retried.
	require.NotNil(t, invite)
	_, getErr := regInvites.GetInviteByToken(context.Background(), invite.Token)
	assert.NoError(t, getErr)
}

func TestSelfRegisterRequiresEmailClaim(t *testing.T) {
	verifier := &testutil.StubVerifier{Claims: &domain.IdentityClaims{ExternalID: "ext-1"}}

	_, err := newRegistrationService(verifier, testutil.NewFakeRegistrationInviteRepository(), &testutil.RecordingSender{}).
		SelfRegister(context.Background(), "id-token")
	assertAPIError(t, err, apierrors.KindBadRequest, apierrors.CodeEmailRequired)
}

func TestSelfRegisterVerifierFailure(t *testing.T) {
	verifier := &testutil.StubVerifier{Err: apierrors.NewAuthError(apierrors.CodeInvalidIdentity, "invalid identity token")}

	_, err := newRegistrationService(verifier, testutil.NewFakeRegistrationInviteRepository(), &testutil.RecordingSender{}).
		SelfRegister(context.Background(), "id-token")
	assertAPIError(t, err, apierrors.KindAuth, apierrors.CodeInvalidIdentity)
}
