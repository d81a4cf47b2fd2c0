// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store package, the quota counter
// store used when Redis is not configured, the durable task table, and the
// embedded goose migrations for the whole schema.
package postgres
