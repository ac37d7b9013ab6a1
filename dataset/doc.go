// Package dataset loads catalog dumps into CatalogItems for offline ingestion.
//
// Supported formats are chosen by file extension: newline-delimited JSON
// (.jsonl, .ndjson), a JSON array (.json) and Parquet (.parquet). Field names
// follow the catalog feed: title, authors, isbns, subjects, cover_url,
// publish_year, work_key, summary and language.
package dataset
