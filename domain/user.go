package domain

import (
	"context"
	"time"
)

// User represents an internal user account linked to an external identity
// provider account via ExternalID (the IdP uid).
type User struct {
	ID             string     `bson:"_id,omitempty" json:"id"`
	ExternalID     string     `bson:"external_id" json:"external_id"`
	Email          string     `bson:"email" json:"email"`
	Username       string     `bson:"username" json:"username"`
	IsVerified     bool       `bson:"is_verified" json:"is_verified"`
	OrganizationID string     `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
	LastLoginAt    *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}

// UserUpdate carries the allow-listed mutable fields for a user update. Nil
// pointers leave the field untouched. IsVerified is deliberately absent: it
// only moves through UserRepository.SetVerified so the false->true transition
// stays monotonic.
type UserUpdate struct {
	Email    *string
	Username *string
}

// Empty reports whether the update would change nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Username == nil
}

// UserRepository is the persistence contract for users. Implementations must
// guarantee uniqueness of ExternalID so two concurrent exchanges for the same
// external identity cannot create duplicate users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
	// SetVerified flips is_verified to true. It never unsets it.
	SetVerified(ctx context.Context, id string) (*User, error)
	DeleteUser(ctx context.Context, id string) error
}
