package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for signed JWTs.
type Config struct {
	// Issuer must equal the token's iss claim exactly.
	Issuer string
	// ExpectedAudiences are accepted aud values; the token must carry at
	// least one of them.
	ExpectedAudiences []string
	// AllowedAlgs lists the only acceptable JWS algorithms. "none" is
	// rejected at construction.
	AllowedAlgs []string
	Leeway      time.Duration
}

// DefaultConfig returns a Config restricted to RS256 with no clock leeway.
func DefaultConfig() *Config {
	return &Config{AllowedAlgs: []string{"RS256"}}
}

// KeyResolver returns the public key for a key id.
type KeyResolver interface {
	SigningKey(ctx context.Context, kid string) (any, error)
}

var (
	// ErrMalformed indicates the token or its header could not be decoded, or
	// the header carries no key id.
	ErrMalformed = errors.New("jwtauth: malformed token")

	// ErrInvalid is matched by every failure of a decodable token.
	ErrInvalid = errors.New("jwtauth: invalid token")

	ErrExpired           = errors.New("jwtauth: token expired")
	ErrSignatureMismatch = errors.New("jwtauth: signature mismatch")
	ErrKeyResolution     = errors.New("jwtauth: key resolution failed")
)

// Verifier validates JWTs signed by keys published through a KeyResolver.
type Verifier struct {
	cfg    Config
	keys   KeyResolver
	parser *jwt.Parser
}

// New validates cfg and constructs a Verifier.
func New(cfg *Config, keys KeyResolver) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if keys == nil {
		return nil, errors.New("key resolver is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if len(cfg.ExpectedAudiences) == 0 {
		return nil, errors.New("at least one expected audience required")
	}
	c := *cfg
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	for _, a := range c.AllowedAlgs {
		if strings.EqualFold(a, "none") || jwt.GetSigningMethod(a) == nil {
			return nil, fmt.Errorf("unsupported alg: %q", a)
		}
	}
	c.AllowedAlgs = slices.Clone(c.AllowedAlgs)
	c.ExpectedAudiences = slices.Clone(c.ExpectedAudiences)

	return &Verifier{
		cfg:  c,
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods(c.AllowedAlgs),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(c.Issuer),
			jwt.WithLeeway(c.Leeway),
		),
	}, nil
}

// Verify checks the token's header, signature, issuer, audience and expiry
// and returns its claims.
func (v *Verifier) Verify(ctx context.Context, tok string) (map[string]any, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrMalformed)
	}
	alg, _ := unverified.Header["alg"].(string)
	if !slices.Contains(v.cfg.AllowedAlgs, alg) {
		// Checked before key resolution so unacceptable tokens never cost an
		// upstream fetch.
		return nil, invalid(nil, "disallowed alg: %q", alg)
	}

	var keyErr error
	keyfunc := func(t *jwt.Token) (any, error) {
		k, err := v.keys.SigningKey(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return k, nil
	}

	parsed, err := v.parser.Parse(tok, keyfunc)
	switch {
	case keyErr != nil:
		return nil, invalid(ErrKeyResolution, "%v", keyErr)
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, invalid(ErrExpired, "%v", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, invalid(ErrSignatureMismatch, "%v", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	case err != nil:
		return nil, invalid(nil, "token parse/verify failed: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, invalid(nil, "invalid claims type")
	}
	if iss, _ := claims["iss"].(string); iss != v.cfg.Issuer {
		return nil, invalid(nil, "issuer mismatch")
	}
	if !audIntersects(claims["aud"], v.cfg.ExpectedAudiences) {
		return nil, invalid(nil, "audience mismatch")
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, invalid(nil, "missing sub")
	}
	return claims, nil
}

func invalid(kind error, format string, args ...any) error {
	detail := fmt.Errorf(format, args...)
	if kind == nil {
		return fmt.Errorf("%w: %w", ErrInvalid, detail)
	}
	return fmt.Errorf("%w: %w: %w", ErrInvalid, kind, detail)
}

func audIntersects(aud any, wants []string) bool {
	wantSet := map[string]struct{}{}
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok2 := wantSet[s]; ok2 {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}
