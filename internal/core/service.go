package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dealerprice/internal/assemble"
	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/decode"
	"github.com/JonMunkholm/dealerprice/internal/filter"
	"github.com/JonMunkholm/dealerprice/internal/logging"
)

// DefaultImportTimeout bounds a single import run.
const DefaultImportTimeout = 100 * time.Minute

// DefaultPreviewRows is how many data rows Preview returns.
const DefaultPreviewRows = 20

// resultRetention is how long finished async imports stay queryable.
const resultRetention = 10 * time.Minute

// Options configures a Service. Zero values select defaults.
type Options struct {
	BatchSize   int
	PreviewRows int
	Timeout     time.Duration

	// DBFCodepage is used for dbf files when a request names none.
	DBFCodepage string

	Limiter  *ImportLimiter
	Notifier Notifier
	Observer Observer

	// Now is the clock used for record timestamps.
	Now func() time.Time
}

// Service runs dealer price imports.
type Service struct {
	store    Store
	replacer *BulkReplacer
	limiter  *ImportLimiter
	locks    *DealerLocks
	notifier Notifier
	observer Observer

	previewRows int
	timeout     time.Duration
	dbfCodepage string
	now         func() time.Time

	mu      sync.RWMutex
	imports map[string]*activeImport
}

// NewService creates a Service on top of store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:       store,
		replacer:    NewBulkReplacer(store, opts.BatchSize, opts.Observer),
		limiter:     opts.Limiter,
		locks:       NewDealerLocks(),
		notifier:    opts.Notifier,
		observer:    opts.Observer,
		previewRows: opts.PreviewRows,
		timeout:     opts.Timeout,
		dbfCodepage: opts.DBFCodepage,
		now:         opts.Now,
		imports:     make(map[string]*activeImport),
	}
	if s.limiter == nil {
		s.limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}
	if s.previewRows <= 0 {
		s.previewRows = DefaultPreviewRows
	}
	if s.timeout <= 0 {
		s.timeout = DefaultImportTimeout
	}
	if s.dbfCodepage == "" {
		s.dbfCodepage = decode.DefaultDBFCodepage
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Limiter returns the import concurrency limiter.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// WaitForDrain blocks until running imports finish or ctx is done.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// RunImport runs an import synchronously. Row-level issues are reported in
// the result; the error is non-nil only when the import failed, in which
// case the result still describes how far it got.
func (s *Service) RunImport(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	id := uuid.New().String()

	if err := s.locks.TryLock(req.DealerID, id); err != nil {
		return nil, err
	}
	defer s.locks.Unlock(req.DealerID, id)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.execute(ctx, id, req, func(func(*ImportProgress)) {})
}

// execute runs the pipeline: decode, filter, assemble, replace. The caller
// holds the dealer lock and a limiter slot.
func (s *Service) execute(ctx context.Context, id string, req ImportRequest, report func(func(*ImportProgress))) (res *ImportResult, err error) {
	if req.FileName == "" {
		req.FileName = filepath.Base(req.Path)
	}
	res = &ImportResult{
		ImportID:  id,
		DealerID:  req.DealerID,
		FileName:  req.FileName,
		Status:    PhaseStarting,
		StartedAt: s.now(),
	}
	log := logging.WithFields(ctx, "import_id", id, "dealer_id", req.DealerID, "file", req.FileName)
	log.Info("import started")

	defer func() { s.finish(ctx, res, err, report) }()

	if req.Mapping == nil {
		return res, ErrNoMapping
	}

	ft, err := decode.ResolveFormat(req.Path, req.Format)
	if err != nil {
		return res, err
	}
	res.Format, res.FormatName = ft, ft.String()

	dealer, err := s.store.GetDealer(ctx, req.DealerID)
	if err != nil {
		return res, err
	}

	// Decode
	report(func(p *ImportProgress) { p.Phase = PhaseDecoding })
	opts := s.decodeOptions(ft, dealer, req.Separator, req.Codepage)
	opts.OnProgress = func(read, total int64) {
		report(func(p *ImportProgress) { p.BytesRead, p.BytesTotal = read, total })
	}
	table, err := decode.Decode(ctx, req.Path, ft.String(), opts)
	if err != nil {
		return res, err
	}
	res.TotalRows = len(table.Rows)

	// Filter
	report(func(p *ImportProgress) { p.Phase, p.TotalRows = PhaseFiltering, res.TotalRows })
	rows, stats := filter.Rows(table, req.Mapping)
	res.Kept, res.FilteredOut = stats.Kept, stats.Rejected
	if err := ctx.Err(); err != nil {
		return res, err
	}

	// Assemble
	report(func(p *ImportProgress) { p.Phase, p.Kept = PhaseAssembling, res.Kept })
	manufacturers, err := assemble.LoadManufacturerSet(ctx, s.store)
	if err != nil {
		return res, err
	}
	assembled, err := assemble.New(req.Mapping, dealer, manufacturers, s.now()).Assemble(ctx, rows)
	if err != nil {
		return res, fmt.Errorf("assemble: %w", err)
	}
	res.Assembled = len(assembled.Records)
	res.MissingName = assembled.MissingName
	res.Coercions = assembled.Coercions
	res.UnknownCurrencies = assembled.UnknownCurrencies
	res.Issues = assembled.Issues
	res.ManufacturersCreated = len(manufacturers.Created())
	for _, issue := range assembled.Issues {
		log.Debug("row issue", "kind", issue.Kind, "row", issue.Row, "column", issue.Column, "value", issue.Value)
	}

	mappingJSON, err := req.Mapping.MarshalJSON()
	if err != nil {
		return res, fmt.Errorf("encode mapping: %w", err)
	}
	state := catalog.ImportState{
		Mapping:    mappingJSON,
		FileType:   ft,
		FileName:   req.FileName,
		UploadedAt: s.now(),
	}
	if ft == catalog.FileTypeCSV {
		state.Separator = opts.Separator
	}

	// Replace
	report(func(p *ImportProgress) { p.Phase, p.Assembled = PhaseReplacing, res.Assembled })
	replaced, err := s.replacer.Replace(ctx, dealer, assembled.Records, state, func(inserted int64) {
		report(func(p *ImportProgress) { p.Inserted = inserted })
	})
	res.Deleted, res.Inserted, res.Batches = replaced.Deleted, replaced.Inserted, replaced.Batches
	if err != nil && !errors.Is(err, ErrCommitBookkeeping) {
		return res, err
	}

	// The product set changed even when the dealer row could not be updated.
	if s.notifier != nil {
		if nerr := s.notifier.ProductsReplaced(ctx, dealer, res.Inserted); nerr != nil {
			log.Warn("products replaced notification failed", "error", nerr)
		}
	}

	return res, err
}

// decodeOptions picks the separator and code page for a file.
func (s *Service) decodeOptions(ft catalog.FileType, dealer catalog.Dealer, separator, codepage string) decode.Options {
	opts := decode.Options{Separator: separator, Codepage: codepage}
	if opts.Separator == "" {
		opts.Separator = dealer.Separator
	}
	if ft == catalog.FileTypeDBF && opts.Codepage == "" {
		opts.Codepage = s.dbfCodepage
	}
	return opts
}

// finish stamps the outcome, records the run and reports it.
func (s *Service) finish(ctx context.Context, res *ImportResult, err error, report func(func(*ImportProgress))) {
	res.Duration = time.Since(res.StartedAt)
	log := logging.WithFields(ctx, "import_id", res.ImportID, "dealer_id", res.DealerID, "file", res.FileName)

	var partial *PartialCommitError
	switch {
	case err == nil:
		res.Status = PhaseComplete
	case errors.As(err, &partial):
		// A partial commit is never just "cancelled": the dealer needs a re-run.
		res.Status = PhaseFailed
	case errors.Is(err, context.Canceled):
		res.Status = PhaseCancelled
	default:
		res.Status = PhaseFailed
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorCode = MapError(err).Code
	}

	// History and logging must survive a cancelled import context.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if rerr := s.store.RecordImportRun(recordCtx, res.run()); rerr != nil {
		log.Warn("record import run failed", "error", rerr)
	}

	if s.observer != nil {
		s.observer.ImportFinished(res)
	}

	fields := []any{
		"format", res.FormatName,
		"total_rows", res.TotalRows,
		"kept", res.Kept,
		"assembled", res.Assembled,
		"missing_name", res.MissingName,
		"coercions", res.Coercions,
		"deleted", res.Deleted,
		"inserted", res.Inserted,
		"duration_ms", res.Duration.Milliseconds(),
	}
	switch {
	case err == nil:
		log.Info("import completed", fields...)
	case partial != nil:
		log.Error("import partially committed", append(fields, "batches", partial.Batches, "error", err)...)
	case res.Status == PhaseCancelled:
		log.Warn("import cancelled", append(fields, "error", err)...)
	default:
		log.Error("import failed", append(fields, "error", err, "code", res.ErrorCode)...)
	}

	report(func(p *ImportProgress) {
		p.Phase = res.Status
		p.Inserted = res.Inserted
		p.Error = res.Error
	})
}
