// Package task runs durable background jobs. Tasks are persisted before they
// are executed, claimed by workers with row-level locking, retried with
// exponential backoff and rebuilt from their stored payload after restarts.
package task
