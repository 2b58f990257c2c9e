// Package guard implements the authentication policy engine: it verifies a
// request's bearer token, resolves the caller's session record and decides
// whether the request proceeds, and with which identity.
//
// # Decision rules
//
// Evaluation walks NoToken → TokenPresent → Verified → SessionResolved and
// stops at the first terminal state:
//
//  1. No Authorization header: anonymous when Optional, else denied with
//     missing_or_invalid_token. A header that is not "Bearer <token>" is
//     always denied with missing_or_invalid_token.
//  2. Verification failure: anonymous when Optional, else denied with
//     invalid_or_expired_token.
//  3. VerifyOnly: allowed, the identity is the verified claims.
//  4. No session record: denied with no_active_session, even when Optional.
//     Inactive record: anonymous when Optional, else inactive_user.
//     Active record: allowed with claims merged with the record.
//
// Optional therefore means "anonymous access is fine when no usable
// credentials are presented", not "ignore every authentication anomaly". A
// valid token for a subject without a session is never downgraded.
//
// # Policies
//
// Flags are declared per scope and resolved innermost-wins:
//
//	r := chi.NewRouter()
//	r.Group(func(r chi.Router) {
//		r.Use(engine.Defaults(guard.Optional(true)))
//		r.With(engine.Authenticate()).Get("/catalog", catalog)
//		r.With(engine.Authenticate(guard.Optional(false))).Get("/cart", cart)
//	})
//
// Without an explicit Strategy, verify-only routes use the JWT verifier and
// other routes the provider verifier.
package guard
