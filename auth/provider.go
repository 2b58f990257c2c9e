package auth

import (
	"context"
	"errors"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/ggoodman/authgate/internal/idtoken"
)

// ProviderConfig describes a managed identity platform that issues ID
// tokens. Use FirebaseProvider for Firebase Auth.
type ProviderConfig = idtoken.Config

// FirebaseProvider returns the ProviderConfig for a Firebase project.
func FirebaseProvider(projectID string) ProviderConfig {
	return idtoken.FirebaseConfig(projectID)
}

// ProviderVerifier delegates verification to the identity platform's
// published keys. It does not distinguish provider outages from
// cryptographic rejection: both surface as ErrInvalidToken.
type ProviderVerifier struct {
	v *idtoken.Verifier
}

var _ Verifier = (*ProviderVerifier)(nil)

// NewProviderVerifier constructs a ProviderVerifier. ctx scopes background
// key fetches and should live as long as the verifier.
func NewProviderVerifier(ctx context.Context, cfg ProviderConfig) (*ProviderVerifier, error) {
	return newProviderVerifier(ctx, cfg, nil)
}

// NewProviderVerifierWithKeySet is like NewProviderVerifier but verifies
// against a caller-supplied key set, such as oidc.StaticKeySet for tests or
// emulators.
func NewProviderVerifierWithKeySet(ctx context.Context, cfg ProviderConfig, ks oidc.KeySet) (*ProviderVerifier, error) {
	if ks == nil {
		return nil, errors.New("key set is required")
	}
	return newProviderVerifier(ctx, cfg, ks)
}

func newProviderVerifier(ctx context.Context, cfg ProviderConfig, ks oidc.KeySet) (*ProviderVerifier, error) {
	v, err := idtoken.New(ctx, cfg, ks)
	if err != nil {
		return nil, err
	}
	return &ProviderVerifier{v: v}, nil
}

// Verify implements Verifier.
func (p *ProviderVerifier) Verify(ctx context.Context, tok string) (*Claims, error) {
	if tok == "" {
		return nil, errors.Join(ErrUnauthorized, ErrMalformedToken, errors.New("empty token"))
	}
	raw, err := p.v.Verify(ctx, tok)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, ErrInvalidToken, err)
	}
	return NewClaims(raw)
}
