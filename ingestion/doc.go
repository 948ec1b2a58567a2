// Package ingestion computes and stores vectors for directory records.
//
// The Pipeline queues one embedding job per record change and runs them on
// a bounded worker pool. Jobs for the same record are coalesced through a
// dedup key, failed jobs are retried with exponential backoff and jitter,
// and jobs that cannot succeed are dead-lettered.
//
// Vector writes are conditional: a job never overwrites a vector computed
// from content newer than its own. Replaying or duplicating a job is
// therefore harmless.
package ingestion
