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


package reembed

import (
	"context"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator iterates over catalog records in batches.
type RecordIterator struct {
	repo      storage.RecordRepository
	filter    storage.RecordFilter
	batchSize int
}

// NewRecordIterator creates a new record iterator over the records matching filter.
// batchSize: number of records handed to fn at a time (DefaultBatchSize when <= 0)
func NewRecordIterator(repo storage.RecordRepository, filter storage.RecordFilter, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		repo:      repo,
		filter:    filter,
		batchSize: batchSize,
	}
}

// Count returns the number of records the iterator will visit.
func (it *RecordIterator) Count(ctx context.Context) (int, error) {
	records, err := it.repo.ListRecords(ctx, it.filter)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ForEach iterates over the records in ID order, calling fn for each batch.
// Iteration stops on first error from fn or when all records are processed.
// Context cancellation is checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.CanonicalRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := it.repo.ListRecords(ctx, it.filter)
	if err != nil {
		return err
	}

	for i := 0; i < len(records); i += it.batchSize {
		end := min(i+it.batchSize, len(records))
		if err := fn(records[i:end]); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
