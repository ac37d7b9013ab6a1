package resolver

import (
	"errors"
	"fmt"

	"github.com/poiesic/shelfmark/core"
)

var (
	// ErrNoLabelMatch indicates a page was fetched but no label yielded an
	// identifier. Not retried.
	ErrNoLabelMatch = fmt.Errorf("%w: no identifier near any label", core.ErrNotFound)

	// ErrDisallowed indicates robots.txt forbids scraping the editions page.
	ErrDisallowed = fmt.Errorf("%w: disallowed by robots.txt", core.ErrNotFound)

	// ErrNoWorkKey indicates a record that has neither a verified identifier
	// nor a work key to resolve from.
	ErrNoWorkKey = errors.New("record has no work key")
)
