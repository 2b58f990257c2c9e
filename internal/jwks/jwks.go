// Package jwks resolves JWT signing keys from a remote JSON Web Key Set.
// Keys are cached for the life of the process; a miss refreshes the whole set
// under a token-bucket limit, with concurrent misses sharing one fetch.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ggoodman/authgate/internal/observability"
)

var (
	// ErrKeyNotFound indicates the freshly fetched key set has no key with the
	// requested id.
	ErrKeyNotFound = errors.New("jwks: key not found")

	// ErrUpstreamUnavailable indicates the key set could not be fetched.
	ErrUpstreamUnavailable = errors.New("jwks: upstream unavailable")

	// ErrRateLimited indicates the fetch budget is exhausted. It also matches
	// ErrUpstreamUnavailable.
	ErrRateLimited = fmt.Errorf("%w: fetch rate limit exceeded", ErrUpstreamUnavailable)
)

const (
	maxBodyBytes = 1 << 20
	// maxFlights bounds how often one miss rejoins a refresh that predates it.
	maxFlights = 3
)

// Config controls fetching and rate limiting.
type Config struct {
	// URL of the JSON Web Key Set. Required.
	URL string
	// Client used for fetches. Defaults to a client without a global timeout;
	// FetchTimeout bounds each request instead.
	Client *http.Client
	// FetchTimeout bounds a single upstream fetch. Default 10s.
	FetchTimeout time.Duration
	// RequestsPerMinute bounds upstream fetches. Default 5.
	RequestsPerMinute int
	// RateLimitWaitMax is how long a miss may wait for a fetch token. Zero
	// fails fast with ErrRateLimited.
	RateLimitWaitMax time.Duration
	Logger           *slog.Logger
}

// Resolver caches signing keys by key id.
type Resolver struct {
	url          string
	client       *http.Client
	fetchTimeout time.Duration
	waitMax      time.Duration
	limiter      *rate.Limiter
	log          *slog.Logger

	group singleflight.Group

	mu   sync.RWMutex
	keys map[string]jose.JSONWebKey
	// gen counts successful refreshes.
	gen uint64
}

// New constructs a Resolver. No network call is made until the first lookup.
func New(cfg Config) (*Resolver, error) {
	if cfg.URL == "" {
		return nil, errors.New("jwks url is required")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	perMinute := cfg.RequestsPerMinute
	return &Resolver{
		url:          cfg.URL,
		client:       cfg.Client,
		fetchTimeout: cfg.FetchTimeout,
		waitMax:      cfg.RateLimitWaitMax,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		log:          cfg.Logger,
		keys:         map[string]jose.JSONWebKey{},
	}, nil
}

// SigningKey returns the public key for kid, fetching the key set on a miss.
// ErrKeyNotFound is only returned once a key set fetched after the miss
// lacks kid.
func (r *Resolver) SigningKey(ctx context.Context, kid string) (any, error) {
	k, gen, ok := r.lookup(kid)
	if ok {
		return k.Key, nil
	}
	for range maxFlights {
		if err := r.awaitRefresh(ctx, gen); err != nil {
			return nil, err
		}
		var next uint64
		if k, next, ok = r.lookup(kid); ok {
			return k.Key, nil
		}
		if next != gen {
			break
		}
		// The flight we joined was satisfied by a refresh older than our miss.
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// awaitRefresh joins (or starts) the shared refresh. A refresh is skipped
// when one already landed after generation seen.
func (r *Resolver) awaitRefresh(ctx context.Context, seen uint64) error {
	ch := r.group.DoChan("refresh", func() (any, error) {
		if _, gen, _ := r.lookup(""); gen != seen {
			return nil, nil
		}
		if err := r.reserve(); err != nil {
			return nil, err
		}
		return nil, r.refresh()
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

// Invalidate evicts a single key id from the cache.
func (r *Resolver) Invalidate(kid string) {
	r.mu.Lock()
	delete(r.keys, kid)
	r.mu.Unlock()
}

// lookup returns the cached key for kid and the generation of the key set.
func (r *Resolver) lookup(kid string) (jose.JSONWebKey, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[kid]
	return k, r.gen, ok
}

// reserve takes a fetch token. The wait is bounded by waitMax alone, so a
// caller abandoning the flight does not fail it for the others.
func (r *Resolver) reserve() error {
	ctx := context.Background()
	if r.waitMax <= 0 {
		if !r.limiter.Allow() {
			observability.JWKSFetchesTotal.WithLabelValues("rate_limited").Inc()
			r.log.WarnContext(ctx, "jwks.fetch.rate_limited")
			return ErrRateLimited
		}
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.waitMax)
	defer cancel()
	if err := r.limiter.Wait(waitCtx); err != nil {
		observability.JWKSFetchesTotal.WithLabelValues("rate_limited").Inc()
		r.log.WarnContext(ctx, "jwks.fetch.rate_limited", slog.String("err", err.Error()))
		return ErrRateLimited
	}
	return nil
}

// refresh runs detached from any single caller so that one caller giving up
// does not fail the fetch for the others sharing it.
func (r *Resolver) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	start := time.Now()
	set, err := r.fetch(ctx)
	if err != nil {
		observability.JWKSFetchesTotal.WithLabelValues("error").Inc()
		r.log.ErrorContext(ctx, "jwks.fetch.fail", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.KeyID == "" || !k.IsPublic() {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		keys[k.KeyID] = k
	}

	r.mu.Lock()
	r.keys = keys
	r.gen++
	r.mu.Unlock()

	observability.JWKSFetchesTotal.WithLabelValues("ok").Inc()
	r.log.InfoContext(ctx, "jwks.fetch.ok", slog.Int("keys", len(keys)), slog.Duration("dur", time.Since(start)))
	return nil
}

func (r *Resolver) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode key set: %w", err)
	}
	return &set, nil
}
