package core

import (
	"fmt"
	"strings"
)

// ValidateCatalogItem validates a CatalogItem before ingestion.
//
// Validation rules:
//   - at least one of title, authors or identifiers must be non-blank
//
// Everything else is optional; missing fields fingerprint as empty.
func ValidateCatalogItem(item *CatalogItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidCatalogItem)
	}
	if strings.TrimSpace(item.Title) != "" {
		return nil
	}
	for _, a := range item.Authors {
		if strings.TrimSpace(a) != "" {
			return nil
		}
	}
	for _, id := range item.Identifiers {
		if strings.TrimSpace(id) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidCatalogItem, ErrEmptyItem)
}

// ValidateEnrichmentRecord validates an EnrichmentRecord before it is written.
//
// Validation rules:
//   - RecordId must be set
//   - Provenance must be catalog-source or generative-fallback
//   - ReadingLevel must be empty or in the vocabulary
func ValidateEnrichmentRecord(rec *EnrichmentRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidEnrichment)
	}
	if rec.RecordId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEnrichment, ErrMissingRecordID)
	}
	if err := ValidateProvenance(rec.Provenance); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnrichment, err)
	}
	if rec.ReadingLevel != "" {
		if _, ok := ParseReadingLevel(string(rec.ReadingLevel)); !ok {
			return fmt.Errorf("%w: %w: %q", ErrInvalidEnrichment, ErrInvalidReadingLevel, rec.ReadingLevel)
		}
	}
	return nil
}

// ValidateProvenance validates that a Provenance has a known value.
func ValidateProvenance(p Provenance) error {
	if p != ProvenanceCatalog && p != ProvenanceGenerative {
		return fmt.Errorf("%w: value %q", ErrInvalidProvenance, p)
	}
	return nil
}
