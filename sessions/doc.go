// Package sessions defines the session records written by the upstream
// login flow and the Store abstraction the authentication pipeline reads
// them through.
//
// A record is keyed by the identity provider subject and scoped by
// deployment environment (see Key), so stores shared between environments
// never collide.
//
// # Read semantics
//
// Store.Get is fail-soft: a missing key, an undecodable value, a timeout and
// an unreachable backend all look the same to the caller, a (nil, false)
// result. Implementations log the non-miss cases. Callers that treat "no
// record" as a denial therefore fail closed when the store is down.
//
// # Write semantics
//
// Store.Set logs failures and returns them wrapped in ErrWriteFailed. It is
// intended for the login flow only; the authentication pipeline never
// writes.
//
// Implementations
//
//	memorystore : map-backed, for tests and single-process runs
//	redisstore  : Redis (single node or cluster) via go-redis
package sessions
