// Package ingestion drives catalog items through deduplication, identifier
// resolution and enrichment.
//
// The Pipeline checks each item's fingerprint against the ledger, matches it
// against existing records by identifier and then by title and author, and
// creates a record only when nothing matches. Newly created records are
// resolved and enriched. Items run on a bounded worker pool; enrichment runs
// on a second pool so API-only work is sized independently of resolution.
//
// A fingerprint is admitted by at most one worker at a time. Stages fail
// independently: a resolution failure does not stop enrichment, and an
// enrichment failure never undoes the ledger's Done status.
package ingestion
