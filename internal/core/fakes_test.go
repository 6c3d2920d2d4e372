package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu            sync.Mutex
	dealers       map[int64]catalog.Dealer
	manufacturers []catalog.Manufacturer
	products      map[int64][]catalog.ProductRecord
	states        map[int64]catalog.ImportState
	runs          []catalog.ImportRun
	touched       map[int64]int
	deletes       int
	upserts       int

	// failInsertAt fails the n-th InsertProducts call (1-based) when > 0.
	failInsertAt int
	inserts      int

	// touchErr and saveStateErr fail the post-batch dealer updates.
	touchErr     error
	saveStateErr error

	// gate, if set, blocks ListManufacturers until closed or ctx is done.
	gate chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		dealers:  make(map[int64]catalog.Dealer),
		products: make(map[int64][]catalog.ProductRecord),
		states:   make(map[int64]catalog.ImportState),
		touched:  make(map[int64]int),
	}
}

func (m *memStore) addDealer(d catalog.Dealer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Separator == "" {
		d.Separator = ";"
	}
	m.dealers[d.ID] = d
}

func (m *memStore) GetDealer(_ context.Context, id int64) (catalog.Dealer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dealers[id]
	if !ok {
		return catalog.Dealer{}, fmt.Errorf("dealer %d: %w", id, catalog.ErrDealerNotFound)
	}
	return d, nil
}

func (m *memStore) ListManufacturers(ctx context.Context) ([]catalog.Manufacturer, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.Manufacturer(nil), m.manufacturers...), nil
}

func (m *memStore) UpsertManufacturer(_ context.Context, name string) (catalog.Manufacturer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	for _, mf := range m.manufacturers {
		if mf.Name == name {
			return mf, false, nil
		}
	}
	mf := catalog.Manufacturer{ID: int64(len(m.manufacturers) + 1), Name: name}
	m.manufacturers = append(m.manufacturers, mf)
	return mf, true, nil
}

func (m *memStore) DeleteDealerProducts(_ context.Context, dealerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	n := int64(len(m.products[dealerID]))
	delete(m.products, dealerID)
	return n, nil
}

func (m *memStore) InsertProducts(ctx context.Context, records []catalog.ProductRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failInsertAt > 0 && m.inserts == m.failInsertAt {
		return errors.New("connection reset by peer")
	}
	for _, r := range records {
		m.products[r.DealerID] = append(m.products[r.DealerID], r)
	}
	return nil
}

func (m *memStore) TouchProvider(_ context.Context, dealerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touched[dealerID]++
	return nil
}

func (m *memStore) SaveImportState(_ context.Context, dealerID int64, st catalog.ImportState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveStateErr != nil {
		return m.saveStateErr
	}
	m.states[dealerID] = st
	d := m.dealers[dealerID]
	d.Mapping = st.Mapping
	ft := st.FileType
	d.FileType = &ft
	d.LastUploadedFile = st.FileName
	d.LastUpload = &st.UploadedAt
	m.dealers[dealerID] = d
	return nil
}

func (m *memStore) RecordImportRun(_ context.Context, run catalog.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memStore) productsOf(dealerID int64) []catalog.ProductRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.ProductRecord(nil), m.products[dealerID]...)
}

func (m *memStore) lastRun() catalog.ImportRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return catalog.ImportRun{}
	}
	return m.runs[len(m.runs)-1]
}

// recordingNotifier counts replacement notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	calls    int
	inserted int64
}

func (n *recordingNotifier) ProductsReplaced(_ context.Context, _ catalog.Dealer, inserted int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.inserted = inserted
	return nil
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustMapping(t *testing.T, opts map[int]mapping.ColumnOption) *mapping.ColumnMapping {
	t.Helper()
	m, err := mapping.Parse(opts)
	if err != nil {
		t.Fatalf("mapping.Parse() error = %v", err)
	}
	return m
}

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestService(store Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewService(store, opts)
}
