package auth

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized is matched by every verification failure returned from a
// Verifier. More specific sentinels below describe the failure kind.
var ErrUnauthorized = errors.New("unauthorized")

var (
	// ErrMalformedToken indicates the token could not be decoded or is missing
	// required header fields (such as the key identifier).
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidToken indicates a decodable token failed a signature, issuer,
	// audience or expiry check, or was rejected by the identity provider.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken refines ErrInvalidToken for tokens past their expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrSignatureMismatch refines ErrInvalidToken for bad signatures.
	ErrSignatureMismatch = errors.New("token signature mismatch")

	// ErrKeyResolution refines ErrInvalidToken when the signing key could not
	// be obtained (unknown key id, upstream unavailable, fetch rate limited).
	ErrKeyResolution = errors.New("signing key resolution failed")
)

// Verifier verifies a raw bearer token and returns its claims.
// Implementations must be safe for concurrent use. Every error returned
// matches ErrUnauthorized and one of ErrMalformedToken or ErrInvalidToken.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (*Claims, error)

// Verify calls f(ctx, token).
func (f VerifierFunc) Verify(ctx context.Context, token string) (*Claims, error) {
	return f(ctx, token)
}

// Claims is the verified content of a token. Raw carries every claim as
// decoded, including provider-specific fields.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Expiry   time.Time
	IssuedAt time.Time
	Raw      map[string]any
}

// Claim returns a single raw claim.
func (c *Claims) Claim(name string) (any, bool) {
	if c == nil || c.Raw == nil {
		return nil, false
	}
	v, ok := c.Raw[name]
	return v, ok
}

// NewClaims builds Claims from a verified raw claim set. It fails with
// ErrInvalidToken if the subject is missing.
func NewClaims(raw map[string]any) (*Claims, error) {
	sub, _ := raw["sub"].(string)
	if sub == "" {
		return nil, errors.Join(ErrUnauthorized, ErrInvalidToken, errors.New("missing sub"))
	}
	iss, _ := raw["iss"].(string)
	return &Claims{
		Subject:  sub,
		Issuer:   iss,
		Audience: audiences(raw["aud"]),
		Expiry:   numericDate(raw["exp"]),
		IssuedAt: numericDate(raw["iat"]),
		Raw:      raw,
	}, nil
}

func audiences(v any) []string {
	switch aud := v.(type) {
	case string:
		return []string{aud}
	case []string:
		return append([]string(nil), aud...)
	case []any:
		out := make([]string, 0, len(aud))
		for _, e := range aud {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func numericDate(v any) time.Time {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0)
	case int64:
		return time.Unix(n, 0)
	case int:
		return time.Unix(int64(n), 0)
	}
	return time.Time{}
}
