// Package relationships tags stored terms and links them into the term
// graph. It runs as a background task after terms are committed and never
// blocks the request path.
//
// Tags come from a model tagger when one is configured, falling back to a
// deterministic heuristic tagger on any model error. Edges are derived by
// comparing each term against a bounded pool of terms from the same topic
// and its siblings, then upserted so reruns refresh strength instead of
// duplicating edges.
package relationships
