// Package sqlite implements the import store on an embedded SQLite file.
// It backs the command line importer and local dry runs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
)

const timeLayout = time.RFC3339Nano

// Store persists dealers, manufacturers, products and import runs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serialises writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateProvider inserts a provider and returns its id.
func (s *Store) CreateProvider(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO providers (name, updated_at) VALUES (?, ?)`, name, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("create provider: %w", err)
	}
	return res.LastInsertId()
}

// CreateDealer inserts a dealer and returns it with its id set.
func (s *Store) CreateDealer(ctx context.Context, d catalog.Dealer) (catalog.Dealer, error) {
	if d.Separator == "" {
		d.Separator = ";"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dealers (name, provider_id, manufacturer_id, currency, csv_separator)
		VALUES (?, ?, ?, ?, ?)`,
		d.Name, d.ProviderID, d.DefaultManufacturerID, int(d.BaseCurrency), d.Separator)
	if err != nil {
		return catalog.Dealer{}, fmt.Errorf("create dealer: %w", err)
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return catalog.Dealer{}, err
	}
	return d, nil
}

// GetDealer loads a dealer by id.
func (s *Store) GetDealer(ctx context.Context, id int64) (catalog.Dealer, error) {
	var (
		d          catalog.Dealer
		currency   int
		fileType   sql.NullInt64
		lastUpload sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, provider_id, manufacturer_id, currency, csv_separator,
			column_options, file_type, last_uploaded_file, last_upload
		FROM dealers WHERE id = ?`, id).Scan(
		&d.ID, &d.Name, &d.ProviderID, &d.DefaultManufacturerID, &currency, &d.Separator,
		&d.Mapping, &fileType, &d.LastUploadedFile, &lastUpload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Dealer{}, fmt.Errorf("dealer %d: %w", id, catalog.ErrDealerNotFound)
	}
	if err != nil {
		return catalog.Dealer{}, fmt.Errorf("get dealer %d: %w", id, err)
	}

	d.BaseCurrency = catalog.Currency(currency)
	if fileType.Valid {
		ft := catalog.FileType(fileType.Int64)
		d.FileType = &ft
	}
	if lastUpload.Valid {
		t, err := parseTime(lastUpload.String)
		if err != nil {
			return catalog.Dealer{}, fmt.Errorf("dealer %d last_upload: %w", id, err)
		}
		d.LastUpload = &t
	}
	return d, nil
}

// ListManufacturers returns every manufacturer.
func (s *Store) ListManufacturers(ctx context.Context) ([]catalog.Manufacturer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM manufacturers ORDER BY id`)
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
func (s *Store) UpsertManufacturer(ctx context.Context, name string) (catalog.Manufacturer, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO manufacturers (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return catalog.Manufacturer{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return catalog.Manufacturer{}, false, err
		}
		return catalog.Manufacturer{ID: id, Name: name}, true, nil
	}

	m := catalog.Manufacturer{Name: name}
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM manufacturers WHERE name = ?`, name).Scan(&m.ID); err != nil {
		return catalog.Manufacturer{}, false, err
	}
	return m, false, nil
}

// DeleteDealerProducts removes the dealer's whole product set.
func (s *Store) DeleteDealerProducts(ctx context.Context, dealerID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM xls_products WHERE dealer_id = ?`, dealerID)
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	return res.RowsAffected()
}

var productColumns = append(append([]string{
	"dealer_id", "manufacturer_id", "currency", "amount", "price", "prices", "name",
}, catalog.AttributeFields...), "created_at", "updated_at")

var insertProductSQL = fmt.Sprintf("INSERT INTO xls_products (%s) VALUES (%s)",
	strings.Join(productColumns, ", "),
	strings.TrimSuffix(strings.Repeat("?, ", len(productColumns)), ", "))

// InsertProducts writes one batch inside its own transaction.
func (s *Store) InsertProducts(ctx context.Context, records []catalog.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback() // No-op once committed

	stmt, err := tx.PrepareContext(ctx, insertProductSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		args, err := productArgs(&records[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert product %q: %w", records[i].Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func productArgs(r *catalog.ProductRecord) ([]any, error) {
	prices := r.Prices
	if prices == nil {
		prices = []catalog.PriceTier{}
	}
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return nil, fmt.Errorf("encode prices: %w", err)
	}

	var currency any
	if r.Currency.Valid() {
		currency = int(r.Currency)
	}

	args := make([]any, 0, len(productColumns))
	args = append(args, r.DealerID, r.ManufacturerID, currency, r.Amount, r.Price, string(pricesJSON), r.Name)
	for _, f := range catalog.AttributeFields {
		if v, ok := r.Attributes[f]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	return append(args, formatTime(r.CreatedAt), formatTime(r.UpdatedAt)), nil
}

// ListProducts returns the dealer's products in insertion order.
func (s *Store) ListProducts(ctx context.Context, dealerID int64) ([]catalog.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(productColumns, ", ")+` FROM xls_products WHERE dealer_id = ? ORDER BY id`, dealerID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []catalog.ProductRecord
	for rows.Next() {
		var (
			r          catalog.ProductRecord
			currency   sql.NullInt64
			pricesJSON string
			attrs      = make([]sql.NullString, len(catalog.AttributeFields))
			createdAt  string
			updatedAt  string
		)
		dest := []any{&r.DealerID, &r.ManufacturerID, &currency, &r.Amount, &r.Price, &pricesJSON, &r.Name}
		for i := range attrs {
			dest = append(dest, &attrs[i])
		}
		dest = append(dest, &createdAt, &updatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		r.Currency = catalog.CurrencyUnknown
		if currency.Valid {
			r.Currency = catalog.Currency(currency.Int64)
		}
		if err := json.Unmarshal([]byte(pricesJSON), &r.Prices); err != nil {
			return nil, fmt.Errorf("decode prices: %w", err)
		}
		for i, a := range attrs {
			if a.Valid {
				if r.Attributes == nil {
					r.Attributes = make(map[string]string)
				}
				r.Attributes[catalog.AttributeFields[i]] = a.String
			}
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TouchProvider bumps the owning provider's updated_at.
func (s *Store) TouchProvider(ctx context.Context, dealerID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE providers SET updated_at = ?
		WHERE id = (SELECT provider_id FROM dealers WHERE id = ?)`, formatTime(time.Now()), dealerID)
	if err != nil {
		return fmt.Errorf("touch provider: %w", err)
	}
	return nil
}

// ProviderUpdatedAt returns a provider's updated_at.
func (s *Store) ProviderUpdatedAt(ctx context.Context, providerID int64) (time.Time, error) {
	var ts string
	if err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM providers WHERE id = ?`, providerID).Scan(&ts); err != nil {
		return time.Time{}, err
	}
	return parseTime(ts)
}

// SaveImportState records the committed mapping and upload bookkeeping.
func (s *Store) SaveImportState(ctx context.Context, dealerID int64, st catalog.ImportState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dealers
		SET column_options = ?, file_type = ?, last_uploaded_file = ?,
		    csv_separator = COALESCE(NULLIF(?, ''), csv_separator), last_upload = ?
		WHERE id = ?`,
		st.Mapping, int(st.FileType), st.FileName, st.Separator, formatTime(st.UploadedAt), dealerID)
	if err != nil {
		return fmt.Errorf("save import state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dealer %d: %w", dealerID, catalog.ErrDealerNotFound)
	}
	return nil
}

// RecordImportRun appends an import history entry.
func (s *Store) RecordImportRun(ctx context.Context, run catalog.ImportRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (id, dealer_id, file_name, file_type, status, total_rows, kept_rows,
			assembled, deleted, inserted, missing_name, coercions, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DealerID, run.FileName, int(run.FileType), run.Status, run.TotalRows, run.Kept,
		run.Assembled, run.Deleted, run.Inserted, run.MissingName, run.Coercions, run.Error,
		formatTime(run.StartedAt), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the most recent runs for a dealer.
func (s *Store) ListImportRuns(ctx context.Context, dealerID int64, limit int) ([]catalog.ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dealer_id, file_name, file_type, status, total_rows, kept_rows, assembled,
			deleted, inserted, missing_name, coercions, error, started_at, duration_ms
		FROM import_runs WHERE dealer_id = ?
		ORDER BY started_at DESC LIMIT ?`, dealerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var out []catalog.ImportRun
	for rows.Next() {
		var (
			run      catalog.ImportRun
			fileType int
			started  string
			ms       int64
		)
		if err := rows.Scan(&run.ID, &run.DealerID, &run.FileName, &fileType, &run.Status, &run.TotalRows,
			&run.Kept, &run.Assembled, &run.Deleted, &run.Inserted, &run.MissingName, &run.Coercions,
			&run.Error, &started, &ms); err != nil {
			return nil, err
		}
		run.FileType = catalog.FileType(fileType)
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		run.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, run)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
