// Package redisstore implements sessions.Store on Redis using go-redis.
// Records are JSON values stored at "<environment>:user:<subject>" with no
// expiry; the login flow that writes them owns their lifetime.
//
// Design Notes
//   - Single node (redis.NewClient) or cluster (redis.NewClusterClient),
//     both used through redis.UniversalClient
//   - Connections are pooled and dialled lazily; Close drains the pool
//   - Every command carries OpTimeout; a timeout is a miss on read
//
// Example:
//
//	store, _ := redisstore.NewFromEnv(redisstore.WithLogger(logger))
//	defer store.Close()
package redisstore
