package core

import (
	"errors"
	"testing"
)

func TestValidateCatalogItem(t *testing.T) {
	tests := []struct {
		name    string
		item    *CatalogItem
		wantErr error
	}{
		{name: "title only", item: &CatalogItem{Title: "Dune"}},
		{name: "authors only", item: &CatalogItem{Authors: []string{"Frank Herbert"}}},
		{name: "identifier only", item: &CatalogItem{Identifiers: []string{"9780441172719"}}},
		{name: "nil item", item: nil, wantErr: ErrInvalidCatalogItem},
		{name: "blank fields", item: &CatalogItem{Title: " ", Authors: []string{""}}, wantErr: ErrEmptyItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCatalogItem(tt.item)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateCatalogItem() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCatalogItem() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEnrichmentRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *EnrichmentRecord
		wantErr error
	}{
		{
			name:   "valid catalog record",
			record: &EnrichmentRecord{RecordId: 1, Provenance: ProvenanceCatalog},
		},
		{
			name:   "valid generated record",
			record: &EnrichmentRecord{RecordId: 1, Provenance: ProvenanceGenerative, ReadingLevel: ReadingLevelAdvanced},
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: ErrInvalidEnrichment,
		},
		{
			name:    "missing record id",
			record:  &EnrichmentRecord{Provenance: ProvenanceCatalog},
			wantErr: ErrMissingRecordID,
		},
		{
			name:    "unknown provenance",
			record:  &EnrichmentRecord{RecordId: 1, Provenance: "scraped"},
			wantErr: ErrInvalidProvenance,
		},
		{
			name:    "reading level outside vocabulary",
			record:  &EnrichmentRecord{RecordId: 1, Provenance: ProvenanceGenerative, ReadingLevel: "Expert"},
			wantErr: ErrInvalidReadingLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnrichmentRecord(tt.record)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateEnrichmentRecord() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEnrichmentRecord() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidEnrichment) {
				t.Errorf("error should wrap ErrInvalidEnrichment: %v", err)
			}
		})
	}
}
