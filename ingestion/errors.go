package ingestion

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrLedgerRepositoryRequired is returned when a ledger repository is not provided.
	ErrLedgerRepositoryRequired = errors.New("ledger repository required")

	// ErrCancelled marks items never started because the run was cancelled.
	ErrCancelled = errors.New("run cancelled before item started")

	// ErrPanic marks an item whose processing panicked.
	ErrPanic = errors.New("item processing panicked")
)
