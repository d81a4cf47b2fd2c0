// Package sources implements the external reference-content providers.
//
// Wikipedia and topic glossary pages back the source-first generation
// pipeline as generation.Source implementations. The news feed backs the
// freshness monitor as a freshness.Feed. All providers share one HTTP client
// with a per-provider token bucket so polling many topics cannot flood an
// upstream.
package sources
