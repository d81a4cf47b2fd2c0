// Package api provides the HTTP handlers for generation, quota,
// moderation, realtime monitoring and the term graph. Handlers decode and
// validate requests, call the services and map service errors to status
// codes without leaking internal detail.
package api
