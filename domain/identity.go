package domain

import "context"

// IdentityClaims are the normalized claims extracted from an external identity
// provider assertion after it has been verified.
type IdentityClaims struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	// Provider is the IdP-reported sign-in provider, e.g. "google.com".
	Provider string
	// DisplayName is optional and only used to address the user in outbound
	// email.
	DisplayName string
}

// IdentityVerifier validates an opaque bearer credential against the external
// identity provider and yields normalized claims. Verification failure is
// terminal for the request; implementations do not retry.
type IdentityVerifier interface {
	Verify(ctx context.Context, bearerToken string) (*IdentityClaims, error)
}
