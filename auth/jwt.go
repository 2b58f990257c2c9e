package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ggoodman/authgate/internal/jwks"
	"github.com/ggoodman/authgate/internal/jwtauth"
)

// JWTConfig describes a standards-based JWT issuer whose signing keys are
// published as a JSON Web Key Set.
type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
}

// Auth0Config derives the issuer and JWKS location of an Auth0 tenant.
func Auth0Config(domain, audience string) JWTConfig {
	domain = strings.TrimSuffix(strings.TrimPrefix(domain, "https://"), "/")
	return JWTConfig{
		Issuer:   "https://" + domain + "/",
		Audience: audience,
		JWKSURL:  "https://" + domain + "/.well-known/jwks.json",
	}
}

type jwtSettings struct {
	verify jwtauth.Config
	keys   jwks.Config
}

// JWTOption configures optional aspects of the JWT verifier.
type JWTOption func(*jwtSettings)

// WithAllowedAlgs restricts accepted JWS algorithms. "none" is never
// allowed. Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) JWTOption {
	return func(s *jwtSettings) { s.verify.AllowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(s *jwtSettings) { s.verify.Leeway = d }
}

// WithAdditionalAudiences accepts further aud values besides the primary one.
func WithAdditionalAudiences(auds ...string) JWTOption {
	return func(s *jwtSettings) { s.verify.ExpectedAudiences = append(s.verify.ExpectedAudiences, auds...) }
}

// WithKeyFetchLimit bounds upstream key set fetches per minute. When the
// budget is exhausted a lookup waits up to waitMax (zero fails fast).
func WithKeyFetchLimit(perMinute int, waitMax time.Duration) JWTOption {
	return func(s *jwtSettings) {
		s.keys.RequestsPerMinute = perMinute
		s.keys.RateLimitWaitMax = waitMax
	}
}

// WithKeyFetchTimeout bounds a single key set fetch.
func WithKeyFetchTimeout(d time.Duration) JWTOption {
	return func(s *jwtSettings) { s.keys.FetchTimeout = d }
}

// WithHTTPClient sets the client used to fetch the key set.
func WithHTTPClient(c *http.Client) JWTOption {
	return func(s *jwtSettings) { s.keys.Client = c }
}

// WithJWTLogger sets the logger used by the key resolver.
func WithJWTLogger(l *slog.Logger) JWTOption {
	return func(s *jwtSettings) { s.keys.Logger = l }
}

// JWTVerifier verifies JWTs locally against keys from a JWKS endpoint.
type JWTVerifier struct {
	v *jwtauth.Verifier
}

var _ Verifier = (*JWTVerifier)(nil)

// NewJWTVerifier returns a Verifier that decodes the token header, resolves
// the signing key by key id, and checks signature, issuer, audience and
// expiry. Keys are fetched lazily on first use.
func NewJWTVerifier(cfg JWTConfig, opts ...JWTOption) (*JWTVerifier, error) {
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	s := &jwtSettings{verify: *jwtauth.DefaultConfig(), keys: jwks.Config{URL: cfg.JWKSURL}}
	s.verify.Issuer = cfg.Issuer
	s.verify.ExpectedAudiences = []string{cfg.Audience}
	for _, opt := range opts {
		opt(s)
	}
	resolver, err := jwks.New(s.keys)
	if err != nil {
		return nil, err
	}
	v, err := jwtauth.New(&s.verify, resolver)
	if err != nil {
		return nil, err
	}
	return &JWTVerifier{v: v}, nil
}

// Verify implements Verifier.
func (j *JWTVerifier) Verify(ctx context.Context, tok string) (*Claims, error) {
	raw, err := j.v.Verify(ctx, tok)
	if err != nil {
		return nil, mapJWTError(err)
	}
	return NewClaims(raw)
}

// mapJWTError maps internal sentinel errors to the public taxonomy.
func mapJWTError(err error) error {
	if errors.Is(err, jwtauth.ErrMalformed) {
		return errors.Join(ErrUnauthorized, ErrMalformedToken, err)
	}
	kinds := []error{ErrUnauthorized, ErrInvalidToken}
	switch {
	case errors.Is(err, jwtauth.ErrExpired):
		kinds = append(kinds, ErrExpiredToken)
	case errors.Is(err, jwtauth.ErrSignatureMismatch):
		kinds = append(kinds, ErrSignatureMismatch)
	case errors.Is(err, jwtauth.ErrKeyResolution):
		kinds = append(kinds, ErrKeyResolution)
	}
	return errors.Join(append(kinds, err)...)
}
