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


// Package storage provides the storage abstraction layer for shelfmark.
//
// This package defines repository interfaces that decouple storage implementation
// from the ingestion, resolution and enrichment logic. Two backends implement
// them:
//
//   - sqlite: relational rows with UNIQUE constraints on the ledger fingerprint
//     and on the enrichment record link. This is the default.
//   - badger: an embedded key-value store holding mus-go encoded values with
//     secondary indexes for identifier and title lookups.
//
// # Architecture
//
//   - RecordRepository: canonical records and their identifier
//   - LedgerRepository: ingestion attempts keyed by fingerprint
//   - EnrichmentRepository: derived content and embeddings per record
//
// LedgerRepository.CompleteWithRecord is the single place where a record is
// created and its fingerprint marked Done. Backends must make the pair atomic so
// two ingesters racing on the same fingerprint cannot both create a record; the
// loser sees ErrDuplicateKey or ErrConflict.
//
// # Usage
//
//	store, err := sqlite.Open(ctx, "/path/to/shelfmark.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	records, ledger, enrichments, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
