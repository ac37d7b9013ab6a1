// Package enrichment derives preview content and embeddings for canonical
// records.
//
// Text fields come from the first source that has them: the catalog's edition
// document (looked up by verified identifier) and then a generative model.
// Embeddings are refreshed separately and only ever replace a stored vector
// on success.
package enrichment
