package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ggoodman/authgate/internal/jwtauth"
)

func TestNewClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	c, err := NewClaims(map[string]any{
		"sub":   "abc123",
		"iss":   "https://tenant.example.com/",
		"aud":   []any{"api", 7, "web"},
		"exp":   float64(exp.Unix()),
		"iat":   int64(100),
		"email": "a@example.com",
	})
	if err != nil {
		t.Fatalf("NewClaims: %v", err)
	}
	if c.Subject != "abc123" || c.Issuer != "https://tenant.example.com/" {
		t.Fatalf("unexpected claims: %+v", c)
	}
	if len(c.Audience) != 2 || c.Audience[0] != "api" || c.Audience[1] != "web" {
		t.Fatalf("audience = %v", c.Audience)
	}
	if !c.Expiry.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", c.Expiry, exp)
	}
	if c.IssuedAt.Unix() != 100 {
		t.Fatalf("iat = %v", c.IssuedAt)
	}
	if v, ok := c.Claim("email"); !ok || v != "a@example.com" {
		t.Fatalf("Claim(email) = %v, %v", v, ok)
	}
	if _, ok := c.Claim("missing"); ok {
		t.Fatalf("Claim(missing) should not be found")
	}
}

func TestNewClaims_RequiresSubject(t *testing.T) {
	for _, raw := range []map[string]any{{}, {"sub": ""}, {"sub": 42}} {
		_, err := NewClaims(raw)
		if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("NewClaims(%v): want ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestNilClaimsClaim(t *testing.T) {
	var c *Claims
	if _, ok := c.Claim("sub"); ok {
		t.Fatalf("nil claims should have no claims")
	}
}

func TestAuth0Config(t *testing.T) {
	for _, domain := range []string{"tenant.eu.auth0.com", "https://tenant.eu.auth0.com/", "tenant.eu.auth0.com/"} {
		cfg := Auth0Config(domain, "https://api.example.com")
		if cfg.Issuer != "https://tenant.eu.auth0.com/" {
			t.Fatalf("%q: issuer = %q", domain, cfg.Issuer)
		}
		if cfg.JWKSURL != "https://tenant.eu.auth0.com/.well-known/jwks.json" {
			t.Fatalf("%q: jwks = %q", domain, cfg.JWKSURL)
		}
		if cfg.Audience != "https://api.example.com" {
			t.Fatalf("%q: audience = %q", domain, cfg.Audience)
		}
	}
}

func TestMapJWTError(t *testing.T) {
	tests := []struct {
		name    string
		in      error
		want    []error
		notWant []error
	}{
		{"malformed", fmt.Errorf("%w: missing kid", jwtauth.ErrMalformed), []error{ErrUnauthorized, ErrMalformedToken}, []error{ErrInvalidToken}},
		{"expired", fmt.Errorf("%w: %w: x", jwtauth.ErrInvalid, jwtauth.ErrExpired), []error{ErrUnauthorized, ErrInvalidToken, ErrExpiredToken}, []error{ErrMalformedToken}},
		{"signature", fmt.Errorf("%w: %w: x", jwtauth.ErrInvalid, jwtauth.ErrSignatureMismatch), []error{ErrInvalidToken, ErrSignatureMismatch}, []error{ErrExpiredToken}},
		{"key resolution", fmt.Errorf("%w: %w: x", jwtauth.ErrInvalid, jwtauth.ErrKeyResolution), []error{ErrInvalidToken, ErrKeyResolution}, nil},
		{"other", fmt.Errorf("%w: audience mismatch", jwtauth.ErrInvalid), []error{ErrUnauthorized, ErrInvalidToken}, []error{ErrExpiredToken, ErrSignatureMismatch, ErrKeyResolution}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapJWTError(tt.in)
			for _, w := range tt.want {
				if !errors.Is(got, w) {
					t.Fatalf("want %v in %v", w, got)
				}
			}
			for _, nw := range tt.notWant {
				if errors.Is(got, nw) {
					t.Fatalf("did not want %v in %v", nw, got)
				}
			}
			if !errors.Is(got, tt.in) {
				t.Fatalf("original error must be preserved")
			}
		})
	}
}

func TestReasonMessage(t *testing.T) {
	tests := map[Reason]string{
		ReasonMissingOrInvalidToken: "Missing or invalid token",
		ReasonMalformedToken:        "Invalid token header",
		ReasonInvalidOrExpiredToken: "Invalid or expired token",
		ReasonKeyResolutionFailed:   "Invalid or expired token",
		ReasonNoActiveSession:       "No active login session found",
		ReasonInactiveUser:          "User is not active",
		ReasonNone:                  "",
	}
	for r, want := range tests {
		if got := r.Message(); got != want {
			t.Fatalf("%q.Message() = %q, want %q", r, got, want)
		}
	}
}

func marshalIdentity(t *testing.T, id *Identity) map[string]any {
	t.Helper()
	b, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestIdentityJSON(t *testing.T) {
	claims := Claims{Subject: "abc123", Raw: map[string]any{"sub": "abc123", "email": "a@example.com"}}

	t.Run("verify only", func(t *testing.T) {
		out := marshalIdentity(t, &Identity{Claims: claims})
		if out["sub"] != "abc123" || out["email"] != "a@example.com" {
			t.Fatalf("claims missing: %v", out)
		}
		for _, k := range []string{"userId", "userType", "retailerId", "permissions", "allowedStores"} {
			if _, ok := out[k]; ok {
				t.Fatalf("verify-only identity must not carry %s: %v", k, out)
			}
		}
	})

	t.Run("admin", func(t *testing.T) {
		out := marshalIdentity(t, &Identity{Claims: claims, Enriched: true, UserID: "u1", UserType: UserTypeAdmin, RetailerID: "r-ignored"})
		if out["userId"] != "u1" || out["userType"] != "ADMIN" {
			t.Fatalf("session fields missing: %v", out)
		}
		if _, ok := out["retailerId"]; ok {
			t.Fatalf("admin must not carry retailerId: %v", out)
		}
		perms, ok := out["permissions"].([]any)
		if !ok || len(perms) != 0 {
			t.Fatalf("permissions should be an empty array, got %#v", out["permissions"])
		}
	})

	t.Run("retailer", func(t *testing.T) {
		out := marshalIdentity(t, &Identity{
			Claims: claims, Enriched: true, UserID: "u2", UserType: UserTypeRetailer,
			RetailerID: "r9", Permissions: []string{"orders:read"}, AllowedStores: []string{"s1", "s2"},
		})
		if out["retailerId"] != "r9" {
			t.Fatalf("retailerId missing: %v", out)
		}
		if stores, _ := out["allowedStores"].([]any); len(stores) != 2 {
			t.Fatalf("allowedStores = %v", out["allowedStores"])
		}
	})

	t.Run("customer", func(t *testing.T) {
		out := marshalIdentity(t, &Identity{Claims: claims, Enriched: true, UserID: "u3", UserType: "CUSTOMER", Permissions: []string{"x"}})
		if out["userType"] != "CUSTOMER" {
			t.Fatalf("userType = %v", out["userType"])
		}
		for _, k := range []string{"retailerId", "permissions", "allowedStores"} {
			if _, ok := out[k]; ok {
				t.Fatalf("customer must not carry %s: %v", k, out)
			}
		}
	})
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil {
		t.Fatalf("empty context should have no identity")
	}
	id := &Identity{Claims: Claims{Subject: "abc123"}}
	if got := IdentityFromContext(WithIdentity(ctx, id)); got != id {
		t.Fatalf("identity not round-tripped through context")
	}
	var nilID *Identity
	if nilID.Subject() != "" {
		t.Fatalf("nil identity subject should be empty")
	}
}
