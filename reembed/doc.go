// Package reembed finds directory records that have no vector and gets
// them embedded.
//
// By default the Backfiller enqueues one embedding job per record and
// leaves the work to the ingestion pipeline, whose dedup keys make
// repeated backfills harmless. In direct mode it embeds records itself in
// batches, retrying transient provider failures with exponential backoff,
// and stores each vector only if the record is unchanged since it was read.
//
// Progress is checkpointed after every batch so an interrupted backfill
// resumes where it stopped.
package reembed
