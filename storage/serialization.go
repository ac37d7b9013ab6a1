// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"

	"github.com/poiesic/shelfmark/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalRecord serializes a CanonicalRecord to bytes.
func MarshalRecord(record *core.CanonicalRecord) []byte {
	buf := make([]byte, core.CanonicalRecordMUS.Size(*record))
	core.CanonicalRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalRecord deserializes a CanonicalRecord from bytes.
func UnmarshalRecord(data []byte) (*core.CanonicalRecord, error) {
	record, _, err := core.CanonicalRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalLedgerEntry serializes a LedgerEntry to bytes.
func MarshalLedgerEntry(entry *core.LedgerEntry) []byte {
	buf := make([]byte, core.LedgerEntryMUS.Size(*entry))
	core.LedgerEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalLedgerEntry deserializes a LedgerEntry from bytes.
func UnmarshalLedgerEntry(data []byte) (*core.LedgerEntry, error) {
	entry, _, err := core.LedgerEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// MarshalEnrichment serializes an EnrichmentRecord to bytes.
func MarshalEnrichment(enrichment *core.EnrichmentRecord) []byte {
	buf := make([]byte, core.EnrichmentRecordMUS.Size(*enrichment))
	core.EnrichmentRecordMUS.Marshal(*enrichment, buf)
	return buf
}

// UnmarshalEnrichment deserializes an EnrichmentRecord from bytes.
func UnmarshalEnrichment(data []byte) (*core.EnrichmentRecord, error) {
	enrichment, _, err := core.EnrichmentRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &enrichment, nil
}
