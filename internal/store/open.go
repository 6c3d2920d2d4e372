// Package store opens the configured persistence backend.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/config"
	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/store/postgres"
	"github.com/JonMunkholm/dealerprice/internal/store/sqlite"
)

// Backend is what the binaries need from a store.
type Backend interface {
	core.Store

	Ping(ctx context.Context) error
	ListImportRuns(ctx context.Context, dealerID int64, limit int) ([]catalog.ImportRun, error)
	CreateProvider(ctx context.Context, name string) (int64, error)
	CreateDealer(ctx context.Context, d catalog.Dealer) (catalog.Dealer, error)
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open connects to the backend selected by cfg.Store.Driver and applies
// the schema. The returned func releases it.
func Open(ctx context.Context, cfg *config.Config) (Backend, func(), error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "postgres":
		db := cfg.Database
		pool, err := postgres.Connect(ctx, db.URL, int32(db.MaxConns), int32(db.MinConns),
			db.MaxConnLifetime, db.MaxConnIdleTime)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
