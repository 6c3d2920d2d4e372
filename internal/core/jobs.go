package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type activeImport struct {
	ID       string
	DealerID int64
	Cancel   context.CancelFunc
	Done     chan struct{}

	mu        sync.Mutex
	progress  ImportProgress
	result    *ImportResult
	listeners []chan ImportProgress
}

// StartImport begins an asynchronous import and returns its id at once.
// The dealer lock and a limiter slot are taken before returning, so
// ErrImportInProgress and ErrTooManyImports are reported synchronously.
// Use SubscribeProgress or GetImportResult to follow it.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if req.Mapping == nil {
		return "", ErrNoMapping
	}
	if req.FileName == "" {
		req.FileName = filepath.Base(req.Path)
	}

	id := uuid.New().String()
	if err := s.locks.TryLock(req.DealerID, id); err != nil {
		return "", err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		s.locks.Unlock(req.DealerID, id)
		return "", err
	}

	// The import outlives the request that started it but keeps its
	// values (request id) for logging.
	importCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)

	imp := &activeImport{
		ID:       id,
		DealerID: req.DealerID,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		progress: ImportProgress{
			ImportID: id,
			DealerID: req.DealerID,
			Phase:    PhaseStarting,
			FileName: req.FileName,
		},
	}

	s.mu.Lock()
	s.imports[id] = imp
	s.mu.Unlock()

	go s.processImport(importCtx, imp, req)

	return id, nil
}

func (s *Service) processImport(ctx context.Context, imp *activeImport, req ImportRequest) {
	res, _ := s.execute(ctx, imp.ID, req, imp.update)

	// Release before signalling completion so a caller woken by Done can
	// start the dealer's next import right away.
	imp.Cancel()
	s.limiter.Release()
	s.locks.Unlock(imp.DealerID, imp.ID)

	imp.complete(res)
	s.cleanup(imp.ID, resultRetention)
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the import completes.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 16)

	imp.mu.Lock()
	defer imp.mu.Unlock()

	// Send current progress immediately
	ch <- imp.progress
	select {
	case <-imp.Done:
		close(ch)
	default:
		imp.listeners = append(imp.listeners, ch)
	}
	return ch, nil
}

// GetImportProgress returns the current progress without blocking.
func (s *Service) GetImportProgress(importID string) (ImportProgress, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return ImportProgress{}, err
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.progress, nil
}

// GetImportResult returns the result of an import, blocking until it
// completes or ctx is done.
func (s *Service) GetImportResult(ctx context.Context, importID string) (*ImportResult, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	select {
	case <-imp.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.result, nil
}

// CancelImport cancels a running import. Cancelling before the replace
// phase leaves the dealer untouched; cancelling during it stops between
// batches and is reported as a partial commit.
func (s *Service) CancelImport(importID string) error {
	imp, err := s.lookup(importID)
	if err != nil {
		return err
	}
	imp.Cancel()
	return nil
}

// ActiveImport returns the id of the dealer's running import.
func (s *Service) ActiveImport(dealerID int64) (string, bool) {
	return s.locks.Holder(dealerID)
}

func (s *Service) lookup(importID string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return imp, nil
}

// update applies fn to the progress and fans the new state out.
func (imp *activeImport) update(fn func(*ImportProgress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	fn(&imp.progress)
	for _, ch := range imp.listeners {
		select {
		case ch <- imp.progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// complete stores the result, marks the import done and closes all
// listener channels in one step so late subscribers never leak.
func (imp *activeImport) complete(res *ImportResult) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	imp.result = res
	close(imp.Done)
	for _, ch := range imp.listeners {
		close(ch)
	}
	imp.listeners = nil
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}
