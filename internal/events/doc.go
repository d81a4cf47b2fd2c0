// Package events decouples components that request background work from
// the task runner that performs it. Services emit TaskRequestEvents; the
// task package registers a handler that persists them as durable tasks.
package events
