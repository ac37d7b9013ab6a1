package ingestion

import (
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/enrichment"
	"github.com/poiesic/shelfmark/resolver"
)

// Reason explains how the dedup stage settled an item.
type Reason string

const (
	ReasonCreated             Reason = "created"
	ReasonAlreadyImported     Reason = "already_imported"
	ReasonExistingIdentifier  Reason = "existing_identifier"
	ReasonExistingTitleAuthor Reason = "existing_title_author"
	ReasonInProgress          Reason = "in_progress"
	ReasonFailed              Reason = "failed"
	ReasonSkipped             Reason = "skipped"
)

// Status is the operator-facing result of one item.
type Status string

const (
	StatusCreated            Status = "created"
	StatusMatchedExisting    Status = "matched-existing"
	StatusIdentifierFound    Status = "identifier-found"
	StatusIdentifierNotFound Status = "identifier-not-found"
	StatusEnrichmentFailed   Status = "enrichment-failed"
	StatusFailed             Status = "failed"
	StatusSkipped            Status = "skipped"
)

// Outcome reports what happened to one item.
type Outcome struct {
	Index       int
	Fingerprint core.Fingerprint
	Title       string
	Record      *core.CanonicalRecord
	RecordId    core.ID
	Created     bool
	Reason      Reason
	Resolution  *resolver.Resolution
	Enrichment  *enrichment.Report
	Err         error
}

// Status folds the stage results into a single label. Enrichment failures
// take precedence, then resolution, then the dedup decision.
func (o *Outcome) Status() Status {
	switch o.Reason {
	case ReasonFailed:
		return StatusFailed
	case ReasonSkipped, ReasonInProgress:
		return StatusSkipped
	}
	if o.Enrichment != nil && !o.Enrichment.OK() {
		return StatusEnrichmentFailed
	}
	if o.Resolution != nil {
		switch o.Resolution.Outcome {
		case resolver.OutcomeFound:
			return StatusIdentifierFound
		case resolver.OutcomeNotFound, resolver.OutcomeFailed:
			return StatusIdentifierNotFound
		}
	}
	if o.Created {
		return StatusCreated
	}
	return StatusMatchedExisting
}

// needsFollowUp reports whether the item produced a new record that should
// be resolved and enriched.
func (o *Outcome) needsFollowUp() bool {
	return o.Reason == ReasonCreated && o.Record != nil
}
