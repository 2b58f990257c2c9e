// Package idtoken verifies ID tokens issued by a managed identity platform
// using go-oidc. Signature, issuer, audience and expiry are all checked by
// the library; any rejection is reported as ErrRejected.
package idtoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	// FirebaseJWKSURL publishes the keys that sign Firebase Auth ID tokens.
	FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// ErrRejected is returned for every token the provider does not accept,
// including when the provider's keys cannot be fetched.
var ErrRejected = errors.New("idtoken: rejected")

// Config describes the provider.
type Config struct {
	Issuer   string
	Audience string
	// JWKSURL is used when Discovery is false.
	JWKSURL string
	// Discovery resolves keys through the issuer's OpenID configuration.
	Discovery     bool
	SupportedAlgs []string
	// FetchTimeout bounds each discovery or key set request. Default 10s.
	FetchTimeout time.Duration
}

// FirebaseConfig returns the Config for Firebase Auth ID tokens of a project.
func FirebaseConfig(projectID string) Config {
	return Config{
		Issuer:        firebaseIssuerPrefix + projectID,
		Audience:      projectID,
		JWKSURL:       FirebaseJWKSURL,
		SupportedAlgs: []string{oidc.RS256},
	}
}

// Verifier wraps an oidc.IDTokenVerifier.
type Verifier struct {
	v *oidc.IDTokenVerifier
}

// New builds a Verifier. When keySet is nil, keys are fetched remotely from
// the configured JWKS URL or via discovery. ctx scopes those background
// fetches and must outlive the Verifier.
func New(ctx context.Context, cfg Config, keySet oidc.KeySet) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	algs := cfg.SupportedAlgs
	if len(algs) == 0 {
		algs = []string{oidc.RS256}
	}
	oc := &oidc.Config{ClientID: cfg.Audience, SupportedSigningAlgs: algs}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx = oidc.ClientContext(ctx, &http.Client{Timeout: timeout})

	switch {
	case keySet != nil:
		return &Verifier{v: oidc.NewVerifier(cfg.Issuer, keySet, oc)}, nil
	case cfg.Discovery:
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery failed: %w", err)
		}
		return &Verifier{v: provider.Verifier(oc)}, nil
	case cfg.JWKSURL != "":
		return &Verifier{v: oidc.NewVerifier(cfg.Issuer, oidc.NewRemoteKeySet(ctx, cfg.JWKSURL), oc)}, nil
	default:
		return nil, errors.New("jwks url is required without discovery")
	}
}

// Verify returns the token's raw claims.
func (v *Verifier) Verify(ctx context.Context, tok string) (map[string]any, error) {
	idt, err := v.v.Verify(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if idt.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrRejected)
	}
	var raw map[string]any
	if err := idt.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %v", ErrRejected, err)
	}
	return raw, nil
}
