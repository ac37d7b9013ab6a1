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


package core

import "errors"

// Failure taxonomy shared by every external-facing component.
var (
	// ErrTransient indicates a network or timeout failure that may succeed on retry.
	ErrTransient = errors.New("transient failure")

	// ErrMalformedResponse indicates an upstream response with an unexpected shape.
	// Never retried.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNotFound indicates an expected absence, such as no discoverable identifier.
	ErrNotFound = errors.New("not found")

	// ErrResourceExhausted indicates a scarce resource (such as a browser session) was unavailable.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Domain validation errors
var (
	// ErrInvalidCatalogItem indicates a CatalogItem failed validation.
	ErrInvalidCatalogItem = errors.New("invalid catalog item")

	// ErrInvalidEnrichment indicates an EnrichmentRecord failed validation.
	ErrInvalidEnrichment = errors.New("invalid enrichment record")

	// ErrEmptyItem indicates an item carries no title, authors or identifiers.
	ErrEmptyItem = errors.New("item has no identifying fields")

	// ErrInvalidProvenance indicates a provenance tag outside the known set.
	ErrInvalidProvenance = errors.New("invalid provenance")

	// ErrInvalidReadingLevel indicates a reading level outside the vocabulary.
	ErrInvalidReadingLevel = errors.New("invalid reading level")

	// ErrMissingRecordID indicates an enrichment without a record link.
	ErrMissingRecordID = errors.New("record id is required")
)
