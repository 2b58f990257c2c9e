package guard

import (
	"slices"

	"github.com/ggoodman/authgate/auth"
	"github.com/ggoodman/authgate/sessions"
)

// ClaimsIdentity returns the identity of a verify-only request: the claims
// and nothing else.
func ClaimsIdentity(c *auth.Claims) *auth.Identity {
	return &auth.Identity{Claims: *c}
}

// BuildIdentity merges verified claims with an active session record. The
// fields copied depend on the user type:
//
//	all types         userId, userType
//	RETAILER          retailerId
//	ADMIN, RETAILER   permissions, allowedStores
func BuildIdentity(c *auth.Claims, rec *sessions.Record) *auth.Identity {
	id := &auth.Identity{
		Claims:   *c,
		Enriched: true,
		UserID:   rec.UserID,
		UserType: rec.UserType,
	}
	if rec.UserType.HasRetailer() {
		id.RetailerID = rec.RetailerID
	}
	if rec.UserType.HasPermissions() {
		id.Permissions = slices.Clone(rec.Permissions)
		id.AllowedStores = slices.Clone(rec.StoreIDs)
	}
	return id
}
