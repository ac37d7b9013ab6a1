package enrichment

import (
	"errors"
	"fmt"

	"github.com/poiesic/shelfmark/core"
)

var (
	// ErrNoIdentifier indicates the record has no verified identifier, so the
	// catalog source is skipped.
	ErrNoIdentifier = fmt.Errorf("%w: no verified identifier", core.ErrNotFound)

	// ErrSourceUnavailable indicates a transport failure from the catalog source
	// or the generative fallback.
	ErrSourceUnavailable = errors.New("enrichment source unavailable")

	// ErrEmbeddingFailed indicates the embedding step failed. The stored vector
	// is left untouched.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrNoGenerator indicates the generative fallback was needed but none is configured.
	ErrNoGenerator = errors.New("no preview generator configured")
)
