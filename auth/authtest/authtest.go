// Package authtest provides in-memory verifiers for tests.
package authtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/authgate/auth"
)

// StaticVerifier accepts a fixed set of tokens. Unknown tokens fail with
// auth.ErrInvalidToken.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]*auth.Claims
	calls  atomic.Int64
}

// NewStaticVerifier creates an empty StaticVerifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{tokens: map[string]*auth.Claims{}}
}

// Add registers token as valid for subject. Extra claims are merged into the
// raw claim set.
func (s *StaticVerifier) Add(token, subject string, extra map[string]any) {
	raw := map[string]any{
		"sub": subject,
		"iss": "https://issuer.test/",
		"aud": "test",
		"exp": float64(time.Now().Add(time.Hour).Unix()),
	}
	for k, v := range extra {
		raw[k] = v
	}
	c, err := auth.NewClaims(raw)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.tokens[token] = c
	s.mu.Unlock()
}

// Calls returns how many times Verify ran.
func (s *StaticVerifier) Calls() int64 { return s.calls.Load() }

// Verify implements auth.Verifier.
func (s *StaticVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	s.calls.Add(1)
	s.mu.RLock()
	c, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Join(auth.ErrUnauthorized, auth.ErrInvalidToken, errors.New("unknown token"))
	}
	cp := *c
	return &cp, nil
}

// Failing returns a verifier that always fails with err joined to
// auth.ErrUnauthorized.
func Failing(err error) auth.Verifier {
	return auth.VerifierFunc(func(context.Context, string) (*auth.Claims, error) {
		return nil, errors.Join(auth.ErrUnauthorized, err)
	})
}
