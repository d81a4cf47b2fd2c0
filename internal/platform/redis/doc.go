// Package redis provides the Redis backed quota counter store and the
// generation response cache. Both are optional: when no Redis address is
// configured the service runs on the Postgres counter store and an
// in-process cache instead.
package redis
