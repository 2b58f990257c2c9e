package wellknown

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMetadataURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.example.com", "https://api.example.com/.well-known/oauth-protected-resource"},
		{"https://api.example.com/", "https://api.example.com/.well-known/oauth-protected-resource"},
		{"https://api.example.com/retail/v1", "https://api.example.com/.well-known/oauth-protected-resource/retail/v1"},
	}
	for _, tt := range tests {
		got, err := MetadataURL(tt.in)
		if err != nil {
			t.Fatalf("MetadataURL(%q): %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Fatalf("MetadataURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := MetadataURL("/relative"); err == nil {
		t.Fatalf("expected error for relative url")
	}
}

func TestHandler(t *testing.T) {
	h := Handler(ProtectedResourceMetadata{
		Resource:               "https://api.example.com",
		AuthorizationServers:   []string{"https://tenant.auth0.com/"},
		BearerMethodsSupported: []string{"header"},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["resource"] != "https://api.example.com" {
		t.Fatalf("doc = %v", doc)
	}
	if _, ok := doc["jwks_uri"]; ok {
		t.Fatalf("empty fields should be omitted: %v", doc)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/.well-known/oauth-protected-resource", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
}
