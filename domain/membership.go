package domain

import (
	"context"
	"time"
)

// MembershipStatus is the state of an organization membership.
type MembershipStatus string

const (
	MembershipStatusActive MembershipStatus = "ACTIVE"
)

// OrganizationMembership links a user to an organization. At most one
// membership exists per (user, organization) pair.
type OrganizationMembership struct {
	ID             string           `bson:"_id,omitempty" json:"id"`
	UserID         string           `bson:"user_id" json:"user_id"`
	OrganizationID string           `bson:"organization_id" json:"organization_id"`
	Role           string           `bson:"role,omitempty" json:"role,omitempty"`
	Status         MembershipStatus `bson:"status" json:"status"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
}

// MembershipRepository persists organization memberships. CreateIfAbsent must
// be atomic with respect to the (user_id, organization_id) uniqueness so that
// concurrent invite redemptions cannot produce duplicate memberships.
type MembershipRepository interface {
	GetActiveMembership(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error)
	CreateIfAbsent(ctx context.Context, membership *OrganizationMembership) (*OrganizationMembership, error)
}
