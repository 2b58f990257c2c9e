// Package auth provides the token verification primitives used by the
// authentication pipeline: the Verifier contract, the verified Claims, the
// request-scoped Identity and the error taxonomy shared by every verifier.
//
// Two verifiers are provided. A ProviderVerifier hands the raw token to a
// managed identity platform (Firebase Auth by default) and trusts its verdict.
// A JWTVerifier verifies standards-based JWTs locally: it reads the key id
// from the token header, resolves the signing key from a JWKS endpoint
// (cached, rate limited, with concurrent misses coalesced) and checks the
// signature, issuer, audience and expiry itself.
//
// Example:
//
//	v, err := auth.NewJWTVerifier(auth.Auth0Config("tenant.eu.auth0.com", "https://api.example"))
//	if err != nil { log.Fatal(err) }
//
//	claims, err := v.Verify(ctx, bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 */ }
//	if errors.Is(err, auth.ErrExpiredToken) { /* same 401, finer log line */ }
//	subject := claims.Subject
//
// # Errors
//
// Every failure matches ErrUnauthorized and exactly one of ErrMalformedToken
// or ErrInvalidToken. Invalid tokens may additionally match ErrExpiredToken,
// ErrSignatureMismatch or ErrKeyResolution. Upstream errors are wrapped, never
// returned bare.
//
// # Identity
//
// Identity is what downstream handlers see. Use IdentityFromContext to read
// it; a nil result means the request is anonymous.
package auth
