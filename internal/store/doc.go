// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the pipeline's core logic: topics, canonical sets, terms, review items,
// tags, graph edges, monitoring jobs and quota counters.
package store
