package domain

import (
	"context"
	"time"
)

// InviteStatus is the lifecycle state of an organization invite. The status is
// monotonic: PENDING -> ACCEPTED and PENDING -> EXPIRED are the only legal
// transitions, and both target states are terminal.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "PENDING"
	InviteStatusAccepted InviteStatus = "ACCEPTED"
	InviteStatusExpired  InviteStatus = "EXPIRED"
)

// OrganizationInvite is a single-use, time-bounded token granting membership
// in an organization. The plaintext token is only ever seen by the invitee;
// the store keeps its SHA-256 fingerprint.
type OrganizationInvite struct {
	ID             string       `bson:"_id,omitempty" json:"id"`
	TokenHash      string       `bson:"token_hash" json:"-"`
	Email          string       `bson:"email" json:"email"`
	OrganizationID string       `bson:"organization_id" json:"organization_id"`
	Role           string       `bson:"role,omitempty" json:"role,omitempty"`
	Status         InviteStatus `bson:"status" json:"status"`
	ExpiresAt      time.Time    `bson:"expires_at" json:"expires_at"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
	AcceptedBy     string       `bson:"accepted_by,omitempty" json:"accepted_by,omitempty"`
	AcceptedAt     *time.Time   `bson:"accepted_at,omitempty" json:"accepted_at,omitempty"`
}

// OrganizationInviteRepository persists organization invites. MarkExpired,
// MarkAccepted and AcceptWithMembership are compare-and-set transitions from
// PENDING; a transition whose precondition no longer holds returns
// ErrInviteNotPending rather than overwriting a terminal state.
type OrganizationInviteRepository interface {
	CreateInvite(ctx context.Context, invite *OrganizationInvite) (*OrganizationInvite, error)
	GetInviteByTokenHash(ctx context.Context, tokenHash string) (*OrganizationInvite, error)
	MarkExpired(ctx context.Context, inviteID string) error
	MarkAccepted(ctx context.Context, inviteID, userID string) error
	// AcceptWithMembership transitions the invite PENDING -> ACCEPTED and
	// creates the organization membership as one combined operation, so that
	// concurrent redemptions of the same invite cannot yield two memberships.
	AcceptWithMembership(ctx context.Context, invite *OrganizationInvite, userID string) error
}

// RegistrationInvite is a pre-identity-linking, single-use token used to
// verify an email address and bootstrap a new user record. Unlike team
// invites it is looked up by its plaintext token.
type RegistrationInvite struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	Token      string     `bson:"token" json:"-"`
	Email      string     `bson:"email" json:"email"`
	ExternalID string     `bson:"external_id" json:"external_id"`
	InvitedBy  string     `bson:"invited_by,omitempty" json:"invited_by,omitempty"`
	ExpiresAt  time.Time  `bson:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	Redeemed   bool       `bson:"redeemed" json:"redeemed"`
	RedeemedAt *time.Time `bson:"redeemed_at,omitempty" json:"redeemed_at,omitempty"`
}

// RegistrationInviteRepository persists self-registration invites. Redeem is a
// compare-and-set on the redeemed flag: the first caller wins, every later
// caller gets ErrInviteRedeemed.
type RegistrationInviteRepository interface {
	CreateInvite(ctx context.Context, invite *RegistrationInvite) (*RegistrationInvite, error)
	GetInviteByToken(ctx context.Context, token string) (*RegistrationInvite, error)
	Redeem(ctx context.Context, inviteID string) error
}
