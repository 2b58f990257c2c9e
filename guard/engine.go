package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/authgate/auth"
	"github.com/ggoodman/authgate/internal/logctx"
	"github.com/ggoodman/authgate/internal/observability"
	"github.com/ggoodman/authgate/sessions"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

var errNoVerifier = errors.New("guard: no verifier configured for strategy")

// Decision is the outcome of authenticating one request.
type Decision struct {
	Allowed bool
	// Identity is nil for anonymous and denied requests.
	Identity *auth.Identity
	// Reason is set for denials.
	Reason auth.Reason
	// Cause is the underlying failure, for logs only. It is also set when an
	// optional route falls back to anonymous.
	Cause error
	// Structural is true when the Authorization header was absent or not a
	// bearer credential.
	Structural bool
	// HeaderPresent reports whether an Authorization header was sent.
	HeaderPresent bool
}

// Anonymous reports whether the request proceeds without an identity.
func (d Decision) Anonymous() bool { return d.Allowed && d.Identity == nil }

func (d Decision) outcome() string {
	switch {
	case !d.Allowed:
		return "deny"
	case d.Identity == nil:
		return "anonymous"
	}
	return "allow"
}

// Option configures an Engine.
type Option func(*Engine)

// WithProviderVerifier sets the verifier used by StrategyProvider.
func WithProviderVerifier(v auth.Verifier) Option {
	return func(e *Engine) { e.verifiers[StrategyProvider] = v }
}

// WithJWTVerifier sets the verifier used by StrategyJWT.
func WithJWTVerifier(v auth.Verifier) Option {
	return func(e *Engine) { e.verifiers[StrategyJWT] = v }
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(e *Engine) { e.realm = strings.TrimSpace(realm) }
}

// WithResourceMetadata advertises the protected resource metadata document
// (RFC 9728) in every challenge.
func WithResourceMetadata(u string) Option {
	return func(e *Engine) { e.resourceMetadata = u }
}

// Engine decides, per request, whether to allow it and with what identity.
type Engine struct {
	verifiers map[Strategy]auth.Verifier
	store     sessions.Store
	log       *slog.Logger
	realm     string

	resourceMetadata string
}

// New constructs an Engine. At least one verifier is required.
func New(store sessions.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	e := &Engine{
		verifiers: map[Strategy]auth.Verifier{},
		store:     store,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.DiscardHandler)
	}
	for s, v := range e.verifiers {
		if v == nil {
			delete(e.verifiers, s)
		}
	}
	if len(e.verifiers) == 0 {
		return nil, errors.New("at least one verifier is required")
	}
	e.log = slog.New(logctx.Handler{Handler: e.log.Handler()})
	return e, nil
}

// Evaluate runs the authentication pipeline for the Authorization header(s)
// in h under policy p.
func (e *Engine) Evaluate(ctx context.Context, h http.Header, p Policy) Decision {
	d := e.evaluate(ctx, h, p)
	observability.DecisionsTotal.WithLabelValues(d.outcome(), string(d.Reason)).Inc()
	return d
}

func (e *Engine) evaluate(ctx context.Context, h http.Header, p Policy) Decision {
	values := h.Values(authorizationHeader)

	// NoToken
	if len(values) == 0 {
		if p.Optional {
			e.log.DebugContext(ctx, "auth.decision.anonymous", slog.String("cause", "no authorization header"))
			return Decision{Allowed: true}
		}
		return e.deny(ctx, Decision{Reason: auth.ReasonMissingOrInvalidToken, Structural: true, Cause: errors.New("no authorization header")}, "")
	}
	tok, ok := bearerToken(values)
	if !ok {
		return e.deny(ctx, Decision{Reason: auth.ReasonMissingOrInvalidToken, Structural: true, HeaderPresent: true, Cause: errors.New("malformed bearer authorization header")}, "")
	}

	// TokenPresent
	strategy := p.strategy()
	if ad, ok := logctx.AuthDataFrom(ctx); ok {
		ad.Strategy = strategy.String()
	}
	claims, err := e.verify(ctx, strategy, tok)
	if err != nil {
		if p.Optional {
			e.log.InfoContext(ctx, "auth.decision.anonymous", slog.String("kind", string(failureKind(err))), slog.String("err", err.Error()))
			return Decision{Allowed: true, Cause: err, HeaderPresent: true}
		}
		return e.deny(ctx, Decision{Reason: auth.ReasonInvalidOrExpiredToken, Cause: err, HeaderPresent: true}, "")
	}

	// Verified
	if ad, ok := logctx.AuthDataFrom(ctx); ok {
		ad.Subject = claims.Subject
	}
	if p.VerifyOnly {
		return Decision{Allowed: true, Identity: ClaimsIdentity(claims), HeaderPresent: true}
	}

	// SessionResolved
	rec, found := e.store.Get(ctx, claims.Subject)
	if !found {
		// Fatal regardless of Optional: a valid token for a subject without a
		// session must never degrade to anonymous access.
		return e.deny(ctx, Decision{Reason: auth.ReasonNoActiveSession, HeaderPresent: true}, claims.Subject)
	}
	if !rec.Active() {
		if p.Optional {
			e.log.InfoContext(ctx, "auth.decision.anonymous", slog.String("subject", claims.Subject), slog.String("cause", "inactive user"))
			return Decision{Allowed: true, HeaderPresent: true}
		}
		return e.deny(ctx, Decision{Reason: auth.ReasonInactiveUser, HeaderPresent: true}, claims.Subject)
	}
	return Decision{Allowed: true, Identity: BuildIdentity(claims, rec), HeaderPresent: true}
}

func (e *Engine) verify(ctx context.Context, s Strategy, tok string) (*auth.Claims, error) {
	v, ok := e.verifiers[s]
	if !ok {
		e.log.ErrorContext(ctx, "auth.verifier.missing", slog.String("strategy", s.String()))
		return nil, errors.Join(auth.ErrUnauthorized, auth.ErrInvalidToken, errNoVerifier)
	}
	return v.Verify(ctx, tok)
}

func (e *Engine) deny(ctx context.Context, d Decision, subject string) Decision {
	attrs := []any{slog.String("reason", string(d.Reason))}
	if subject != "" {
		attrs = append(attrs, slog.String("subject", subject))
	}
	if d.Cause != nil {
		if !d.Structural {
			attrs = append(attrs, slog.String("kind", string(failureKind(d.Cause))))
		}
		attrs = append(attrs, slog.String("err", d.Cause.Error()))
	}
	e.log.InfoContext(ctx, "auth.decision.deny", attrs...)
	return d
}

// bearerToken extracts the token from a single "Bearer <token>" header.
func bearerToken(values []string) (string, bool) {
	if len(values) != 1 {
		return "", false
	}
	v := values[0]
	if !strings.HasPrefix(v, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(v[len(bearerPrefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// failureKind classifies a verifier error for logs.
func failureKind(err error) auth.Reason {
	switch {
	case errors.Is(err, auth.ErrMalformedToken):
		return auth.ReasonMalformedToken
	case errors.Is(err, auth.ErrKeyResolution):
		return auth.ReasonKeyResolutionFailed
	}
	return auth.ReasonInvalidOrExpiredToken
}
