// Package service contains the ingestion use cases that tie the pipeline
// together: admitting a generation request against the quota governor,
// reusing a topic's canonical set, generating only the shortfall, and
// routing every candidate through validation into the term store or the
// review queue.
//
// Services receive their stores, the transactor and cross-cutting
// dependencies through constructor injection and never depend on a concrete
// infrastructure package. Moderation lives in the review subpackage and
// token verification in auth.
package service
