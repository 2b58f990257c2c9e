// Package authgate assembles the authentication pipeline from environment
// configuration: the provider and JWT verifiers, the Redis session store and
// the policy engine. Construct a Gate at process start and Close it at
// shutdown, after the HTTP server has drained.
package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ggoodman/authgate/auth"
	"github.com/ggoodman/authgate/guard"
	"github.com/ggoodman/authgate/internal/wellknown"
	"github.com/ggoodman/authgate/sessions"
	"github.com/ggoodman/authgate/sessions/redisstore"
)

// Config is the process configuration. Fields are populated from the
// environment by NewFromEnv.
type Config struct {
	Realm string `env:"AUTH_REALM,default=api"`
	// ResourceURL, when set, enables the protected resource metadata document
	// and its advertisement in challenges.
	ResourceURL string `env:"AUTH_RESOURCE_URL"`

	// Standards-based JWT verification (Auth0-style tenant). Disabled when
	// Auth0Domain is empty.
	Auth0Domain           string        `env:"AUTH0_DOMAIN"`
	Auth0Audience         string        `env:"AUTH0_AUDIENCE"`
	JWTAllowedAlgs        []string      `env:"JWT_ALLOWED_ALGS,default=RS256"`
	JWTLeeway             time.Duration `env:"JWT_LEEWAY,default=0s"`
	JWKSRequestsPerMinute int           `env:"JWKS_REQUESTS_PER_MINUTE,default=5"`
	JWKSFetchTimeout      time.Duration `env:"JWKS_FETCH_TIMEOUT,default=10s"`
	JWKSRateLimitWaitMax  time.Duration `env:"JWKS_RATE_LIMIT_WAIT_MAX,default=0s"`

	// Managed provider verification. Disabled when both are empty.
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	// OIDCIssuer selects a generic OIDC provider resolved by discovery
	// instead of Firebase; OIDCAudience is its expected aud.
	OIDCIssuer   string `env:"OIDC_ISSUER"`
	OIDCAudience string `env:"OIDC_AUDIENCE"`

	Redis redisstore.Config
}

// NewFromEnv builds a Gate using envdecode to populate Config.
func NewFromEnv(ctx context.Context, opts ...Option) (*Gate, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// ConfigFromEnv decodes Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Option configures a Gate.
type Option func(*options)

type options struct {
	logger *slog.Logger
	store  sessions.Store
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore uses store instead of building one from Config.Redis. The Gate
// still closes it.
func WithStore(store sessions.Store) Option {
	return func(o *options) { o.store = store }
}

// Gate owns the pipeline's long-lived resources.
type Gate struct {
	engine *guard.Engine
	store  sessions.Store
	cancel context.CancelFunc

	metadataPath string
	metadata     http.Handler
}

// New wires the pipeline. ctx bounds construction; background key fetches
// run until Close.
func New(ctx context.Context, cfg Config, opts ...Option) (*Gate, error) {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}

	var engineOpts []guard.Option
	engineOpts = append(engineOpts, guard.WithLogger(o.logger), guard.WithRealm(cfg.Realm))

	var prm *wellknown.ProtectedResourceMetadata
	if cfg.ResourceURL != "" {
		prm = &wellknown.ProtectedResourceMetadata{
			Resource:               cfg.ResourceURL,
			BearerMethodsSupported: []string{"header"},
		}
	}

	if cfg.Auth0Domain != "" {
		jc := auth.Auth0Config(cfg.Auth0Domain, cfg.Auth0Audience)
		jv, err := auth.NewJWTVerifier(
			jc,
			auth.WithAllowedAlgs(cfg.JWTAllowedAlgs...),
			auth.WithLeeway(cfg.JWTLeeway),
			auth.WithKeyFetchLimit(cfg.JWKSRequestsPerMinute, cfg.JWKSRateLimitWaitMax),
			auth.WithKeyFetchTimeout(cfg.JWKSFetchTimeout),
			auth.WithJWTLogger(o.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("jwt verifier: %w", err)
		}
		engineOpts = append(engineOpts, guard.WithJWTVerifier(jv))
		if prm != nil {
			prm.AuthorizationServers = append(prm.AuthorizationServers, jc.Issuer)
			prm.JwksURI = jc.JWKSURL
			prm.ResourceSigningAlgValuesSupported = cfg.JWTAllowedAlgs
		}
	}

	// Remote key sets outlive construction.
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if pc, ok := providerConfig(cfg); ok {
		pv, err := auth.NewProviderVerifier(bg, pc)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("provider verifier: %w", err)
		}
		engineOpts = append(engineOpts, guard.WithProviderVerifier(pv))
		if prm != nil {
			prm.AuthorizationServers = append(prm.AuthorizationServers, pc.Issuer)
		}
	}

	g := &Gate{cancel: cancel}
	if prm != nil {
		mu, err := wellknown.MetadataURL(cfg.ResourceURL)
		if err != nil {
			cancel()
			return nil, err
		}
		g.metadataPath = mu.Path
		g.metadata = wellknown.Handler(*prm)
		engineOpts = append(engineOpts, guard.WithResourceMetadata(mu.String()))
	}

	store := o.store
	if store == nil {
		rs, err := redisstore.New(cfg.Redis, redisstore.WithLogger(o.logger))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("session store: %w", err)
		}
		store = rs
	}

	engine, err := guard.New(store, engineOpts...)
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, err
	}
	g.engine, g.store = engine, store
	return g, nil
}

func providerConfig(cfg Config) (auth.ProviderConfig, bool) {
	var pc auth.ProviderConfig
	switch {
	case cfg.OIDCIssuer != "":
		pc = auth.ProviderConfig{Issuer: cfg.OIDCIssuer, Audience: cfg.OIDCAudience, Discovery: true}
	case cfg.FirebaseProjectID != "":
		pc = auth.FirebaseProvider(cfg.FirebaseProjectID)
	default:
		return pc, false
	}
	pc.FetchTimeout = cfg.JWKSFetchTimeout
	return pc, true
}

// Engine returns the policy engine.
func (g *Gate) Engine() *guard.Engine { return g.engine }

// Store returns the session store, for the login flow that writes records.
func (g *Gate) Store() sessions.Store { return g.store }

// ResourceMetadata returns the path and handler of the protected resource
// metadata document. ok is false when ResourceURL is not configured.
func (g *Gate) ResourceMetadata() (path string, h http.Handler, ok bool) {
	return g.metadataPath, g.metadata, g.metadata != nil
}

// Close stops background key fetches and closes the session store.
func (g *Gate) Close() error {
	g.cancel()
	return g.store.Close()
}
