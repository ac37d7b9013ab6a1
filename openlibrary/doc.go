// Package openlibrary is a small client for the Open Library JSON API.
//
// It covers the calls the catalog needs: edition lookup by ISBN, work lookup
// by key, the editions list of a work, and subject listings used as an
// ingestion feed. Missing documents are reported as nil without error.
// Transport failures, 429 and 5xx responses wrap core.ErrTransient;
// undecodable bodies wrap core.ErrMalformedResponse.
package openlibrary
