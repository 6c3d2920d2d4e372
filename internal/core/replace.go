package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/logging"
)

// DefaultBatchSize is the number of products inserted per transaction.
const DefaultBatchSize = 200

// ReplaceResult counts what a replacement changed.
type ReplaceResult struct {
	Deleted  int64
	Inserted int64
	Batches  int
}

// BulkReplacer swaps a dealer's product set: delete everything, insert the
// new records in fixed-size batches, then touch the provider and persist
// the dealer's import state.
//
// Each batch is atomic. The replacement as a whole is not: a failure after
// the delete leaves the dealer with the batches committed so far and is
// reported as a *PartialCommitError. Import state is written only after
// every batch succeeded; failing to write it wraps ErrCommitBookkeeping.
type BulkReplacer struct {
	store     Store
	batchSize int
	observer  Observer
}

// NewBulkReplacer creates a replacer. A non-positive batchSize selects
// DefaultBatchSize; observer may be nil.
func NewBulkReplacer(store Store, batchSize int, observer Observer) *BulkReplacer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BulkReplacer{store: store, batchSize: batchSize, observer: observer}
}

// Replace runs the replacement. onBatch, if set, receives the running
// inserted count after every committed batch.
func (r *BulkReplacer) Replace(
	ctx context.Context,
	dealer catalog.Dealer,
	records []catalog.ProductRecord,
	state catalog.ImportState,
	onBatch func(inserted int64),
) (ReplaceResult, error) {
	var res ReplaceResult
	log := logging.WithFields(ctx, "dealer_id", dealer.ID)

	// Nothing has changed yet; a cancelled import stops cleanly here.
	if err := ctx.Err(); err != nil {
		return res, err
	}

	deleted, err := r.store.DeleteDealerProducts(ctx, dealer.ID)
	if err != nil {
		return res, fmt.Errorf("delete dealer %d products: %w", dealer.ID, err)
	}
	res.Deleted = deleted
	log.Debug("deleted dealer products", "deleted", deleted)

	partial := func(err error) error {
		return &PartialCommitError{
			DealerID: dealer.ID,
			Deleted:  res.Deleted,
			Inserted: res.Inserted,
			Batches:  res.Batches,
			Err:      err,
		}
	}

	for start := 0; start < len(records); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return res, partial(err)
		}

		end := min(start+r.batchSize, len(records))
		batchStart := time.Now()
		if err := r.store.InsertProducts(ctx, records[start:end]); err != nil {
			return res, partial(fmt.Errorf("insert batch %d: %w", res.Batches+1, err))
		}

		res.Batches++
		res.Inserted += int64(end - start)
		if r.observer != nil {
			r.observer.BatchInserted(end-start, time.Since(batchStart))
		}
		if onBatch != nil {
			onBatch(res.Inserted)
		}
		log.Debug("inserted batch", "batch", res.Batches, "records", end-start, "inserted", res.Inserted)
	}

	if err := r.store.TouchProvider(ctx, dealer.ID); err != nil {
		return res, fmt.Errorf("%w: touch dealer %d: %w", ErrCommitBookkeeping, dealer.ID, err)
	}
	if err := r.store.SaveImportState(ctx, dealer.ID, state); err != nil {
		return res, fmt.Errorf("%w: save dealer %d import state: %w", ErrCommitBookkeeping, dealer.ID, err)
	}

	return res, nil
}
