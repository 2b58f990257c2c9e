package redisstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/authgate/internal/observability"
	"github.com/ggoodman/authgate/sessions"
)

// Config for the Redis-backed Store. Defaults can be loaded via envdecode.
type Config struct {
	// Environment scopes every key. ENV: APP_ENV
	Environment string `env:"APP_ENV,default=development"`

	Host     string `env:"REDIS_HOST,default=localhost"`
	Port     int    `env:"REDIS_PORT,default=6379"`
	DB       int    `env:"REDIS_DB,default=0"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD"`

	TLS           bool   `env:"REDIS_TLS,default=false"`
	TLSServerName string `env:"REDIS_TLS_SERVER_NAME"`
	TLSCACertFile string `env:"REDIS_TLS_CA_CERT_FILE"`

	// Cluster switches to a cluster client seeded with Host:Port. DB must be
	// 0 in cluster mode.
	Cluster bool `env:"REDIS_CLUSTER,default=false"`

	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT,default=10s"`
	// OpTimeout bounds each Get/Set, on top of the caller's context.
	OpTimeout time.Duration `env:"REDIS_OP_TIMEOUT,default=2s"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for fail-soft read and write errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithOpTimeout overrides the per-operation timeout.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) { s.opTimeout = d }
}

// Store implements sessions.Store on Redis.
type Store struct {
	client    redis.UniversalClient
	env       string
	opTimeout time.Duration
	log       *slog.Logger
}

var _ sessions.Store = (*Store)(nil)

// New builds a Store from cfg. go-redis dials lazily, so no connection is
// attempted until the first command; use Ping for readiness checks.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Environment == "" {
		return nil, errors.New("environment is required")
	}
	if cfg.Cluster && cfg.DB != 0 {
		return nil, errors.New("redis cluster does not support a non-zero db")
	}
	tlsConfig, err := loadTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dial := cfg.ConnectTimeout
	if dial <= 0 {
		dial = 10 * time.Second
	}

	var client redis.UniversalClient
	if cfg.Cluster {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       []string{addr},
			Username:    cfg.Username,
			Password:    cfg.Password,
			TLSConfig:   tlsConfig,
			DialTimeout: dial,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:        addr,
			DB:          cfg.DB,
			Username:    cfg.Username,
			Password:    cfg.Password,
			TLSConfig:   tlsConfig,
			DialTimeout: dial,
		})
	}
	s := NewWithClient(client, cfg.Environment)
	if cfg.OpTimeout > 0 {
		s.opTimeout = cfg.OpTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(opts ...Option) (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(cfg, opts...)
}

// NewWithClient wraps an existing client. The Store takes ownership and
// closes it on Close.
func NewWithClient(client redis.UniversalClient, environment string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		env:       environment,
		opTimeout: 2 * time.Second,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements sessions.Store.
func (s *Store) Get(ctx context.Context, subject string) (*sessions.Record, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.SessionLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		observability.SessionLookupsTotal.WithLabelValues("error").Inc()
		s.log.ErrorContext(ctx, "session.get.fail", slog.String("subject", subject), slog.String("err", err.Error()))
		return nil, false
	}
	var rec *sessions.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		observability.SessionLookupsTotal.WithLabelValues("error").Inc()
		s.log.ErrorContext(ctx, "session.decode.fail", slog.String("subject", subject), slog.String("err", err.Error()))
		return nil, false
	}
	if rec == nil {
		observability.SessionLookupsTotal.WithLabelValues("miss").Inc()
		s.log.WarnContext(ctx, "session.get.null", slog.String("subject", subject))
		return nil, false
	}
	observability.SessionLookupsTotal.WithLabelValues("hit").Inc()
	return rec, true
}

// Set implements sessions.Store.
func (s *Store) Set(ctx context.Context, subject string, rec *sessions.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", sessions.ErrWriteFailed)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		s.log.ErrorContext(ctx, "session.set.fail", slog.String("subject", subject), slog.String("err", err.Error()))
		return fmt.Errorf("%w: %v", sessions.ErrWriteFailed, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.key(subject), b, 0).Err(); err != nil {
		s.log.ErrorContext(ctx, "session.set.fail", slog.String("subject", subject), slog.String("err", err.Error()))
		return fmt.Errorf("%w: %v", sessions.ErrWriteFailed, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(subject string) string { return sessions.Key(s.env, subject) }

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if !cfg.TLS {
		return nil, nil
	}
	tc := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.TLSServerName}
	if cfg.TLSCACertFile != "" {
		caBytes, err := os.ReadFile(filepath.Clean(cfg.TLSCACertFile))
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_CERT_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("parse REDIS_TLS_CA_CERT_FILE: no valid certificates")
		}
		tc.RootCAs = pool
	}
	return tc, nil
}
