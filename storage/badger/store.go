package badger

import "errors"

// Store bundles the BadgerDB repositories over one backend.
type Store struct {
	Records     *RecordRepository
	Ledger      *LedgerRepository
	Enrichments *EnrichmentRepository

	backend *Backend
}

// Open opens (or creates) a BadgerDB store in the directory at path.
func Open(path string) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	store, err := newStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

func newStore(backend *Backend) (*Store, error) {
	records, err := NewRecordRepository(backend)
	if err != nil {
		return nil, err
	}
	return &Store{
		Records:     records,
		Ledger:      NewLedgerRepository(backend, records),
		Enrichments: NewEnrichmentRepository(backend),
		backend:     backend,
	}, nil
}

// Close releases the repositories and then the backend.
func (s *Store) Close() error {
	return errors.Join(
		s.Enrichments.Close(),
		s.Ledger.Close(),
		s.Records.Close(),
		s.backend.Close(),
	)
}
