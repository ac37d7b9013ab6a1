// Package reembed refreshes the embeddings of every record in a catalog,
// typically after switching embedding models.
//
// Records are embedded in batches. A batch that fails after retries marks
// its records failed and leaves their stored vectors untouched; the pass
// continues and reports every failure at the end.
package reembed
