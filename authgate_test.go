package authgate

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ggoodman/authgate/auth"
	"github.com/ggoodman/authgate/sessions"
	"github.com/ggoodman/authgate/sessions/memorystore"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "retail-prod")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Realm != "api" {
		t.Fatalf("realm = %q", cfg.Realm)
	}
	if len(cfg.JWTAllowedAlgs) != 1 || cfg.JWTAllowedAlgs[0] != "RS256" {
		t.Fatalf("algs = %v", cfg.JWTAllowedAlgs)
	}
	if cfg.JWKSRequestsPerMinute != 5 || cfg.JWKSFetchTimeout != 10*time.Second {
		t.Fatalf("jwks defaults = %d, %v", cfg.JWKSRequestsPerMinute, cfg.JWKSFetchTimeout)
	}
	if cfg.Redis.Environment != "development" || cfg.Redis.Port != 6379 {
		t.Fatalf("redis defaults = %+v", cfg.Redis)
	}
	if cfg.FirebaseProjectID != "retail-prod" {
		t.Fatalf("project = %q", cfg.FirebaseProjectID)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("AUTH0_DOMAIN", "tenant.auth0.com")
	t.Setenv("AUTH0_AUDIENCE", "https://api.example.com")
	t.Setenv("JWKS_REQUESTS_PER_MINUTE", "10")
	t.Setenv("APP_ENV", "production")
	t.Setenv("REDIS_OP_TIMEOUT", "500ms")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Auth0Domain != "tenant.auth0.com" || cfg.JWKSRequestsPerMinute != 10 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Redis.Environment != "production" || cfg.Redis.OpTimeout != 500*time.Millisecond {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
}

func TestNew_RequiresAVerifier(t *testing.T) {
	store := memorystore.New("test")
	if _, err := New(context.Background(), Config{}, WithStore(store)); err == nil {
		t.Fatalf("expected error without any verifier configured")
	}
}

func TestNew_WithStore(t *testing.T) {
	cfg := Config{
		Realm:                 "api",
		Auth0Domain:           "tenant.auth0.com",
		Auth0Audience:         "https://api.example.com",
		JWTAllowedAlgs:        []string{"RS256"},
		JWKSRequestsPerMinute: 5,
		FirebaseProjectID:     "retail-prod",
	}
	store := memorystore.New("test")
	g, err := New(context.Background(), cfg, WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Engine() == nil {
		t.Fatalf("engine is nil")
	}
	if g.Store() != store {
		t.Fatalf("store not used")
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := store.Get(context.Background(), "anyone"); ok {
		t.Fatalf("store should be closed")
	}
}

func TestNew_InvalidJWTConfig(t *testing.T) {
	cfg := Config{Auth0Domain: "tenant.auth0.com", JWTAllowedAlgs: []string{"RS256"}}
	if _, err := New(context.Background(), cfg, WithStore(memorystore.New("test"))); err == nil {
		t.Fatalf("expected error for missing audience")
	}
}

func TestNew_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	p, _ := strconv.Atoi(port)

	cfg := Config{FirebaseProjectID: "retail-prod"}
	cfg.Redis.Environment = "staging"
	cfg.Redis.Host = host
	cfg.Redis.Port = p

	g, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()

	rec := &sessions.Record{UserID: "u1", UserType: auth.UserTypeAdmin, IsActive: sessions.Bool(true)}
	if err := g.Store().Set(context.Background(), "abc123", rec); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("staging:user:abc123") {
		t.Fatalf("record not written under the environment-scoped key; keys: %v", mr.Keys())
	}
	got, ok := g.Store().Get(context.Background(), "abc123")
	if !ok || got.UserID != "u1" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
}

func TestProviderConfig(t *testing.T) {
	if _, ok := providerConfig(Config{}); ok {
		t.Fatalf("no provider expected")
	}
	pc, ok := providerConfig(Config{FirebaseProjectID: "p1", JWKSFetchTimeout: 3 * time.Second})
	if !ok || pc.Issuer != "https://securetoken.google.com/p1" || pc.Discovery {
		t.Fatalf("firebase = %+v", pc)
	}
	if pc.FetchTimeout != 3*time.Second {
		t.Fatalf("fetch timeout = %v, want 3s", pc.FetchTimeout)
	}
	pc, ok = providerConfig(Config{FirebaseProjectID: "p1", OIDCIssuer: "https://idp.example.com", OIDCAudience: "web"})
	if !ok || !pc.Discovery || pc.Issuer != "https://idp.example.com" || pc.Audience != "web" {
		t.Fatalf("oidc = %+v", pc)
	}
}

func TestNew_ResourceMetadata(t *testing.T) {
	cfg := Config{
		Realm:             "api",
		ResourceURL:       "https://api.example.com/retail",
		Auth0Domain:       "tenant.auth0.com",
		Auth0Audience:     "https://api.example.com",
		JWTAllowedAlgs:    []string{"RS256"},
		FirebaseProjectID: "retail-prod",
	}
	g, err := New(context.Background(), cfg, WithStore(memorystore.New("test")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()

	path, h, ok := g.ResourceMetadata()
	if !ok || path != "/.well-known/oauth-protected-resource/retail" {
		t.Fatalf("metadata = %q, %v", path, ok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var doc struct {
		Resource             string   `json:"resource"`
		AuthorizationServers []string `json:"authorization_servers"`
		JwksURI              string   `json:"jwks_uri"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Resource != cfg.ResourceURL || len(doc.AuthorizationServers) != 2 || doc.JwksURI != "https://tenant.auth0.com/.well-known/jwks.json" {
		t.Fatalf("doc = %+v", doc)
	}

	rec = httptest.NewRecorder()
	g.Engine().Authenticate()(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/retail/orders", nil))
	want := `Bearer realm="api", resource_metadata="https://api.example.com/.well-known/oauth-protected-resource/retail"`
	if got := rec.Header().Get("WWW-Authenticate"); got != want {
		t.Fatalf("challenge = %q, want %q", got, want)
	}
}

func TestNew_WithoutResourceURL(t *testing.T) {
	g, err := New(context.Background(), Config{FirebaseProjectID: "p"}, WithStore(memorystore.New("test")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Close()
	if _, _, ok := g.ResourceMetadata(); ok {
		t.Fatalf("metadata should be disabled")
	}
}
