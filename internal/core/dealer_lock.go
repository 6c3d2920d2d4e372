package core

import (
	"fmt"
	"sync"
)

// DealerLocks serializes imports per dealer. Deleting and re-inserting a
// dealer's products from two imports at once would interleave and corrupt
// the product set, so a second import is refused rather than queued.
type DealerLocks struct {
	mu     sync.Mutex
	active map[int64]string
}

// NewDealerLocks creates an empty lock table.
func NewDealerLocks() *DealerLocks {
	return &DealerLocks{active: make(map[int64]string)}
}

// TryLock claims the dealer for importID. It fails with
// ErrImportInProgress if another import holds the dealer.
func (l *DealerLocks) TryLock(dealerID int64, importID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.active[dealerID]; ok {
		return fmt.Errorf("dealer %d (import %s): %w", dealerID, holder, ErrImportInProgress)
	}
	l.active[dealerID] = importID
	return nil
}

// Unlock releases the dealer if importID holds it.
func (l *DealerLocks) Unlock(dealerID int64, importID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active[dealerID] == importID {
		delete(l.active, dealerID)
	}
}

// Holder returns the import currently holding the dealer.
func (l *DealerLocks) Holder(dealerID int64) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.active[dealerID]
	return id, ok
}
