package assemble

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
)

// ManufacturerStore persists manufacturers. UpsertManufacturer must be
// safe against concurrent inserts of the same name (unique constraint plus
// upsert) and report whether the row was newly created.
type ManufacturerStore interface {
	ListManufacturers(ctx context.Context) ([]catalog.Manufacturer, error)
	UpsertManufacturer(ctx context.Context, name string) (catalog.Manufacturer, bool, error)
}

// ManufacturerSet is the working set of known manufacturers for one
// import. Lookups are exact name matches; misses are upserted once and
// cached. It is safe for concurrent use.
type ManufacturerSet struct {
	store ManufacturerStore

	mu      sync.Mutex
	byName  map[string]int64
	created []catalog.Manufacturer
}

// LoadManufacturerSet preloads every known manufacturer.
func LoadManufacturerSet(ctx context.Context, store ManufacturerStore) (*ManufacturerSet, error) {
	all, err := store.ListManufacturers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list manufacturers: %w", err)
	}

	s := &ManufacturerSet{
		store:  store,
		byName: make(map[string]int64, len(all)),
	}
	for _, m := range all {
		s.byName[m.Name] = m.ID
	}
	return s, nil
}

// Resolve returns the id for name, creating the manufacturer on a miss.
func (s *ManufacturerSet) Resolve(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[name]; ok {
		return id, nil
	}

	m, created, err := s.store.UpsertManufacturer(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("upsert manufacturer %q: %w", name, err)
	}
	s.byName[name] = m.ID
	if created {
		s.created = append(s.created, m)
	}
	return m.ID, nil
}

// Created returns the manufacturers this set inserted.
func (s *ManufacturerSet) Created() []catalog.Manufacturer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.Manufacturer(nil), s.created...)
}

// Len returns the number of known manufacturers.
func (s *ManufacturerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byName)
}
