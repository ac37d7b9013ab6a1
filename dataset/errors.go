package dataset

import "errors"

var (
	// ErrUnsupportedFormat is returned for a file extension with no loader.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)
