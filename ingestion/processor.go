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


package ingestion

import (
	"context"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/enrichment"
	"github.com/poiesic/shelfmark/resolver"
)

// Resolver upgrades a record's placeholder identifier.
// *resolver.Resolver satisfies it.
type Resolver interface {
	// Resolve returns a non-nil resolution. On success the record's identifier is updated in place.
	Resolve(ctx context.Context, record *core.CanonicalRecord) (*resolver.Resolution, error)
}

// Enricher derives preview content and an embedding for a record.
// *enrichment.Enricher satisfies it.
type Enricher interface {
	Run(ctx context.Context, recordID core.ID) *enrichment.Report
}
