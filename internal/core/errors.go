package core

import (
	"errors"
	"fmt"
)

var (
	// ErrImportInProgress is returned when the dealer already has a running
	// import. Imports of one dealer are strictly serialized.
	ErrImportInProgress = errors.New("dealer import already in progress")

	// ErrImportNotFound is returned for an unknown or expired import id.
	ErrImportNotFound = errors.New("import not found")

	// ErrPartialCommit marks a replacement that failed after the dealer's
	// products were deleted. The dealer must be re-imported.
	ErrPartialCommit = errors.New("partial commit")

	// ErrCommitBookkeeping marks a replacement whose product batches all
	// committed but whose dealer bookkeeping (provider timestamp, mapping,
	// last upload) failed to save. The products are current; the dealer
	// row is stale.
	ErrCommitBookkeeping = errors.New("commit bookkeeping failed")

	// ErrNoMapping is returned when an import has no column mapping.
	ErrNoMapping = errors.New("no column mapping")
)

// PartialCommitError reports how far a failed replacement got. Deleted
// rows are gone and Inserted rows from completed batches are stored; the
// dealer's mapping and last upload were not updated.
type PartialCommitError struct {
	DealerID int64
	Deleted  int64
	Inserted int64
	Batches  int
	Err      error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("%s for dealer %d: deleted %d, inserted %d in %d batches: %v",
		ErrPartialCommit, e.DealerID, e.Deleted, e.Inserted, e.Batches, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *PartialCommitError) Unwrap() []error {
	return []error{ErrPartialCommit, e.Err}
}
