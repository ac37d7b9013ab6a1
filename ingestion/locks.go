package ingestion

import (
	"sync"

	"github.com/poiesic/shelfmark/core"
)

// fingerprintLocks serializes work on a fingerprint. Entries are dropped when
// no goroutine holds or waits on them.
type fingerprintLocks struct {
	mu    sync.Mutex
	locks map[core.Fingerprint]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newFingerprintLocks() *fingerprintLocks {
	return &fingerprintLocks{locks: make(map[core.Fingerprint]*refLock)}
}

// lock blocks until fp is free and returns the matching unlock.
func (l *fingerprintLocks) lock(fp core.Fingerprint) func() {
	l.mu.Lock()
	lk, ok := l.locks[fp]
	if !ok {
		lk = &refLock{}
		l.locks[fp] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return func() {
		lk.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, fp)
		}
		l.mu.Unlock()
	}
}

func (l *fingerprintLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
