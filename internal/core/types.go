package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/assemble"
	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

// Store is the persistence contract of the import pipeline. Both the
// postgres and sqlite stores satisfy it.
type Store interface {
	assemble.ManufacturerStore

	GetDealer(ctx context.Context, id int64) (catalog.Dealer, error)

	// DeleteDealerProducts removes every product owned by the dealer and
	// returns how many rows were deleted.
	DeleteDealerProducts(ctx context.Context, dealerID int64) (int64, error)

	// InsertProducts writes one batch. The batch must be atomic: either all
	// records are stored or none are.
	InsertProducts(ctx context.Context, records []catalog.ProductRecord) error

	TouchProvider(ctx context.Context, dealerID int64) error
	SaveImportState(ctx context.Context, dealerID int64, state catalog.ImportState) error
	RecordImportRun(ctx context.Context, run catalog.ImportRun) error
}

// Notifier is told when a dealer's product set was replaced.
type Notifier interface {
	ProductsReplaced(ctx context.Context, dealer catalog.Dealer, inserted int64) error
}

// Observer receives import measurements.
type Observer interface {
	ImportFinished(res *ImportResult)
	BatchInserted(records int, d time.Duration)
}

// ImportPhase indicates the current stage of an import.
type ImportPhase string

const (
	PhaseStarting   ImportPhase = "starting"
	PhaseDecoding   ImportPhase = "decoding"
	PhaseFiltering  ImportPhase = "filtering"
	PhaseAssembling ImportPhase = "assembling"
	PhaseReplacing  ImportPhase = "replacing"
	PhaseComplete   ImportPhase = "complete"
	PhaseFailed     ImportPhase = "failed"
	PhaseCancelled  ImportPhase = "cancelled"
)

// Done reports whether the phase is terminal.
func (p ImportPhase) Done() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// ImportProgress represents the current state of an import.
type ImportProgress struct {
	ImportID string      `json:"import_id"`
	DealerID int64       `json:"dealer_id"`
	Phase    ImportPhase `json:"phase"`
	FileName string      `json:"file_name"`

	// Byte-based progress while a delimited file is decoded.
	BytesRead  int64 `json:"bytes_read"`
	BytesTotal int64 `json:"bytes_total"`

	TotalRows int    `json:"total_rows"`
	Kept      int    `json:"kept"`
	Assembled int    `json:"assembled"`
	Inserted  int64  `json:"inserted"`
	Error     string `json:"error,omitempty"`
}

// Percent returns the progress as a percentage (0-100). During the
// replace phase it follows inserted records, before that decoded bytes.
func (p ImportProgress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.Assembled > 0 {
		return int(p.Inserted * 100 / int64(p.Assembled))
	}
	if p.BytesTotal > 0 {
		return int(p.BytesRead * 100 / p.BytesTotal)
	}
	return 0
}

// ImportRequest describes one import of a file for a dealer.
type ImportRequest struct {
	DealerID int64

	// Path is the file on disk. FileName is the name recorded on the
	// dealer; it defaults to the base name of Path.
	Path     string
	FileName string

	// Format overrides the file extension ("csv", "dbf", ...).
	Format string

	// Separator for delimited text; defaults to the dealer's separator.
	Separator string

	// Codepage overrides the configured dbf code page, or sets the
	// charset of delimited text.
	Codepage string

	Mapping *mapping.ColumnMapping
}

// ImportResult contains the final result of an import.
type ImportResult struct {
	ImportID   string           `json:"import_id"`
	DealerID   int64            `json:"dealer_id"`
	FileName   string           `json:"file_name"`
	Format     catalog.FileType `json:"-"`
	FormatName string           `json:"format,omitempty"`
	Status     ImportPhase      `json:"status"`

	TotalRows   int `json:"total_rows"`
	FilteredOut int `json:"filtered_out"`
	Kept        int `json:"kept"`
	Assembled   int `json:"assembled"`

	// Row-level issues; none of them abort the import.
	MissingName       int              `json:"missing_name"`
	Coercions         int              `json:"coercions"`
	UnknownCurrencies int              `json:"unknown_currencies"`
	Issues            []assemble.Issue `json:"issues,omitempty"`

	ManufacturersCreated int   `json:"manufacturers_created"`
	Deleted              int64 `json:"deleted"`
	Inserted             int64 `json:"inserted"`
	Batches              int   `json:"batches"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
}

func (r *ImportResult) run() catalog.ImportRun {
	return catalog.ImportRun{
		ID:          r.ImportID,
		DealerID:    r.DealerID,
		FileName:    r.FileName,
		FileType:    r.Format,
		Status:      string(r.Status),
		TotalRows:   r.TotalRows,
		Kept:        r.Kept,
		Assembled:   r.Assembled,
		Deleted:     r.Deleted,
		Inserted:    r.Inserted,
		MissingName: r.MissingName,
		Coercions:   r.Coercions,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		Duration:    r.Duration,
	}
}
