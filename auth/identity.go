package auth

import (
	"context"
	"encoding/json"
)

// UserType classifies the account behind a session record.
type UserType string

const (
	UserTypeAdmin    UserType = "ADMIN"
	UserTypeRetailer UserType = "RETAILER"
)

// HasRetailer reports whether identities of this type carry a retailer id.
func (t UserType) HasRetailer() bool { return t == UserTypeRetailer }

// HasPermissions reports whether identities of this type carry permissions
// and allowed stores.
func (t UserType) HasPermissions() bool {
	return t == UserTypeAdmin || t == UserTypeRetailer
}

// Identity is the authenticated principal attached to a request. It is built
// fresh for every request and never persisted.
//
// A verify-only identity has Enriched == false and only Claims populated.
type Identity struct {
	Claims   Claims
	Enriched bool

	UserID        string
	UserType      UserType
	RetailerID    string
	Permissions   []string
	AllowedStores []string
}

// Subject returns the identity provider subject.
func (id *Identity) Subject() string {
	if id == nil {
		return ""
	}
	return id.Claims.Subject
}

// MarshalJSON renders the identity as one flat object: raw claims followed by
// the session fields permitted for the user type.
func (id *Identity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(id.Claims.Raw)+5)
	for k, v := range id.Claims.Raw {
		out[k] = v
	}
	out["sub"] = id.Claims.Subject
	if id.Enriched {
		out["userId"] = id.UserID
		out["userType"] = id.UserType
		if id.UserType.HasRetailer() {
			out["retailerId"] = id.RetailerID
		}
		if id.UserType.HasPermissions() {
			out["permissions"] = nonNil(id.Permissions)
			out["allowedStores"] = nonNil(id.AllowedStores)
		}
	}
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type identityKey struct{}

// WithIdentity stores the authenticated identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity. It returns nil
// for anonymous requests.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}
