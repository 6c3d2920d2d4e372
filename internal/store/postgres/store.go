// Package postgres implements the import store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store persists dealers, manufacturers, products and import runs.
// Statements run on db; pool is used to open batch transactions.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Connect opens a pool with the given limits and verifies connectivity.
func Connect(ctx context.Context, url string, maxConns, minConns int32, maxLifetime, maxIdle time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = maxLifetime
	cfg.MaxConnIdleTime = maxIdle

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const dealerColumns = `id, name, provider_id, manufacturer_id, currency, csv_separator,
	column_options, file_type, last_uploaded_file, last_upload`

// CreateProvider inserts a provider and returns its id.
func (s *Store) CreateProvider(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO providers (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create provider: %w", err)
	}
	return id, nil
}

// CreateDealer inserts a dealer and returns it with its id set.
func (s *Store) CreateDealer(ctx context.Context, d catalog.Dealer) (catalog.Dealer, error) {
	if d.Separator == "" {
		d.Separator = ";"
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO dealers (name, provider_id, manufacturer_id, currency, csv_separator)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		d.Name, d.ProviderID, d.DefaultManufacturerID, int16(d.BaseCurrency), d.Separator,
	).Scan(&d.ID)
	if err != nil {
		return catalog.Dealer{}, fmt.Errorf("create dealer: %w", err)
	}
	return d, nil
}

// GetDealer loads a dealer by id.
func (s *Store) GetDealer(ctx context.Context, id int64) (catalog.Dealer, error) {
	var (
		d        catalog.Dealer
		currency int16
		fileType *int16
	)
	err := s.db.QueryRow(ctx, `SELECT `+dealerColumns+` FROM dealers WHERE id = $1`, id).Scan(
		&d.ID, &d.Name, &d.ProviderID, &d.DefaultManufacturerID, &currency, &d.Separator,
		&d.Mapping, &fileType, &d.LastUploadedFile, &d.LastUpload,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Dealer{}, fmt.Errorf("dealer %d: %w", id, catalog.ErrDealerNotFound)
	}
	if err != nil {
		return catalog.Dealer{}, fmt.Errorf("get dealer %d: %w", id, err)
	}

	d.BaseCurrency = catalog.Currency(currency)
	if fileType != nil {
		ft := catalog.FileType(*fileType)
		d.FileType = &ft
	}
	return d, nil
}

// ListManufacturers returns every manufacturer.
func (s *Store) ListManufacturers(ctx context.Context) ([]catalog.Manufacturer, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM manufacturers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list manufacturers: %w", err)
	}
	defer rows.Close()

	var out []catalog.Manufacturer
	for rows.Next() {
		var m catalog.Manufacturer
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertManufacturer inserts a manufacturer or returns the existing row.
// The unique constraint on name makes concurrent imports converge on one id.
func (s *Store) UpsertManufacturer(ctx context.Context, name string) (catalog.Manufacturer, bool, error) {
	m := catalog.Manufacturer{Name: name}
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO manufacturers (name) VALUES ($1)
		ON CONFLICT ON CONSTRAINT manufacturers_name_key DO UPDATE SET name = EXCLUDED.name
		RETURNING id, (xmax = 0)`, name).Scan(&m.ID, &inserted)
	if err != nil {
		return catalog.Manufacturer{}, false, err
	}
	return m, inserted, nil
}

// DeleteDealerProducts removes the dealer's whole product set.
func (s *Store) DeleteDealerProducts(ctx context.Context, dealerID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM xls_products WHERE dealer_id = $1`, dealerID)
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	return tag.RowsAffected(), nil
}

var productColumns = append(append([]string{
	"dealer_id", "manufacturer_id", "currency", "amount", "price", "prices", "name",
}, catalog.AttributeFields...), "created_at", "updated_at")

// InsertProducts copies one batch inside its own transaction, so a batch
// is either fully present or absent.
func (s *Store) InsertProducts(ctx context.Context, records []catalog.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx) // No-op once committed

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"xls_products"}, productColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return productRow(&records[i])
		}),
	)
	if err != nil {
		return fmt.Errorf("copy products: %w", err)
	}
	if n != int64(len(records)) {
		return fmt.Errorf("copy products: wrote %d of %d rows", n, len(records))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func productRow(r *catalog.ProductRecord) ([]any, error) {
	prices := r.Prices
	if prices == nil {
		prices = []catalog.PriceTier{}
	}
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return nil, fmt.Errorf("encode prices: %w", err)
	}

	var currency *int16
	if r.Currency.Valid() {
		c := int16(r.Currency)
		currency = &c
	}

	row := make([]any, 0, len(productColumns))
	row = append(row, r.DealerID, r.ManufacturerID, currency, r.Amount, r.Price, pricesJSON, r.Name)
	for _, f := range catalog.AttributeFields {
		if v, ok := r.Attributes[f]; ok {
			row = append(row, v)
		} else {
			row = append(row, nil)
		}
	}
	return append(row, r.CreatedAt, r.UpdatedAt), nil
}

// TouchProvider bumps the owning provider's updated_at, the signal other
// systems use to refresh cached catalogs.
func (s *Store) TouchProvider(ctx context.Context, dealerID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE providers SET updated_at = now()
		WHERE id = (SELECT provider_id FROM dealers WHERE id = $1)`, dealerID)
	if err != nil {
		return fmt.Errorf("touch provider: %w", err)
	}
	return nil
}

// SaveImportState records the committed mapping and upload bookkeeping.
func (s *Store) SaveImportState(ctx context.Context, dealerID int64, st catalog.ImportState) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE dealers
		SET column_options = $2, file_type = $3, last_uploaded_file = $4,
		    csv_separator = COALESCE(NULLIF($5, ''), csv_separator),
		    last_upload = $6, updated_at = now()
		WHERE id = $1`,
		dealerID, st.Mapping, int16(st.FileType), st.FileName, st.Separator, st.UploadedAt)
	if err != nil {
		return fmt.Errorf("save import state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dealer %d: %w", dealerID, catalog.ErrDealerNotFound)
	}
	return nil
}

// RecordImportRun appends an import history entry.
func (s *Store) RecordImportRun(ctx context.Context, run catalog.ImportRun) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO import_runs (id, dealer_id, file_name, file_type, status, total_rows, kept_rows,
			assembled, deleted, inserted, missing_name, coercions, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.DealerID, run.FileName, int16(run.FileType), run.Status, run.TotalRows, run.Kept,
		run.Assembled, run.Deleted, run.Inserted, run.MissingName, run.Coercions, run.Error,
		run.StartedAt, run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the most recent runs for a dealer.
func (s *Store) ListImportRuns(ctx context.Context, dealerID int64, limit int) ([]catalog.ImportRun, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, dealer_id, file_name, file_type, status, total_rows, kept_rows, assembled,
			deleted, inserted, missing_name, coercions, error, started_at, duration_ms
		FROM import_runs WHERE dealer_id = $1
		ORDER BY started_at DESC LIMIT $2`, dealerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var out []catalog.ImportRun
	for rows.Next() {
		var (
			run      catalog.ImportRun
			fileType int16
			ms       int64
		)
		if err := rows.Scan(&run.ID, &run.DealerID, &run.FileName, &fileType, &run.Status, &run.TotalRows,
			&run.Kept, &run.Assembled, &run.Deleted, &run.Inserted, &run.MissingName, &run.Coercions,
			&run.Error, &run.StartedAt, &ms); err != nil {
			return nil, err
		}
		run.FileType = catalog.FileType(fileType)
		run.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, run)
	}
	return out, rows.Err()
}
