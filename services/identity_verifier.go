package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/log"
)

// HTTPIdentityVerifier validates identity assertions against the external
// identity provider's verification endpoint. The provider is the trusted
// verifier: this client performs no signature checks of its own and no
// retries, a rejection is terminal for the request.
type HTTPIdentityVerifier struct {
	endpoint string
	client   *http.Client
	logger   log.Logger
}

func NewHTTPIdentityVerifier(endpoint string, logger log.Logger) *HTTPIdentityVerifier {
	return &HTTPIdentityVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// verifierResponse is the provider's claim payload for a valid assertion.
type verifierResponse struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Firebase      struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
}

// Verify sends the assertion to the provider and yields normalized claims.
func (v *HTTPIdentityVerifier) Verify(ctx context.Context, bearerToken string) (*domain.IdentityClaims, error) {
	if bearerToken == "" {
		return nil, apierrors.NewAuthError(apierrors.CodeMissingAuthHeader, "missing or invalid Authorization header")
	}

	body, err := json.Marshal(map[string]string{"id_token": bearerToken})
	if err != nil {
		return nil, apierrors.FromError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.FromError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn(ctx, "Identity verifier unreachable", map[string]interface{}{"error": err.Error()})
		return nil, apierrors.NewDownstream(apierrors.CodeVerifierUnreachable, "identity verifier unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn(ctx, "Identity token rejected", map[string]interface{}{"status": resp.StatusCode})
		return nil, apierrors.NewAuthError(apierrors.CodeInvalidIdentity, "invalid identity token")
	}

	var payload verifierResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apierrors.NewAuthError(apierrors.CodeInvalidIdentity, fmt.Sprintf("malformed verifier response: %v", err))
	}
	if payload.UID == "" {
		return nil, apierrors.NewAuthError(apierrors.CodeInvalidIdentity, "verifier response missing uid")
	}

	return &domain.IdentityClaims{
		ExternalID:    payload.UID,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		Provider:      payload.Firebase.SignInProvider,
		DisplayName:   payload.Name,
	}, nil
}

var _ domain.IdentityVerifier = (*HTTPIdentityVerifier)(nil)
