package mongodb

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	UsersCollection               = "users"
	UserSessionsCollection        = "user_sessions"
	OrganizationInvitesCollection = "organization_invites"
	OrganizationMembersCollection = "organization_members"
	RegistrationInvitesCollection = "registration_invites"
)

// NewObjectID generates a new MongoDB ObjectID as a string.
func NewObjectID() string {
	return primitive.NewObjectID().Hex()
}
