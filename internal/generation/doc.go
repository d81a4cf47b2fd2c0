// Package generation turns a topic into candidate vocabulary entries.
//
// The Orchestrator supports two pipelines. Model-first renders a prompt that
// embeds every style, complexity and exclusion constraint and asks a Model
// for strict JSON. Source-first queries reference Sources concurrently and
// asks the Model only for the slots the sources could not fill.
//
// Both pipelines deduplicate against an exclusion list and retry a model step
// whose batch is mostly duplicates. Responses are cached per topic, pipeline
// and complexity, and cached results are flagged so usage is not charged
// twice. Model adapters for Gemini and OpenAI live under internal/platform.
package generation
