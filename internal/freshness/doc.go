// Package freshness watches topics for newly published material and scores it
// for recency.
//
// A Monitor runs one schedule per active MonitoringJob. Each poll fetches
// feed items newer than the job's last run, classifies and scores them, and
// submits a freshness_ingest task so the items flow through generation,
// validation and review like any other candidate. Recency only changes
// scores and ordering.
//
// Scores follow finalScore = baseQuality * recencyMultiplier, where the
// multiplier is maximal inside the breaking window and decays monotonically
// to 1.0 at the cutoff.
package freshness
