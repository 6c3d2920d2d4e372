// Package catalog holds the dealer price catalog domain types shared by the
// import pipeline and the storage backends.
package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileType identifies the container format of a dealer price list. The
// numeric values are persisted on the dealer row.
type FileType int

const (
	FileTypeXLS  FileType = 0
	FileTypeXLSX FileType = 1
	FileTypeDBF  FileType = 2
	FileTypeCSV  FileType = 3
)

var fileTypeNames = map[FileType]string{
	FileTypeXLS:  "xls",
	FileTypeXLSX: "xlsx",
	FileTypeDBF:  "dbf",
	FileTypeCSV:  "csv",
}

func (f FileType) String() string {
	if name, ok := fileTypeNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FileType(%d)", int(f))
}

// ParseFileType resolves a format hint ("xlsx", ".dbf", "CSV", "txt").
func ParseFileType(hint string) (FileType, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hint), ".")) {
	case "xls":
		return FileTypeXLS, true
	case "xlsx":
		return FileTypeXLSX, true
	case "dbf":
		return FileTypeDBF, true
	case "csv", "txt", "tsv":
		return FileTypeCSV, true
	}
	return 0, false
}

// FileTypeFromPath resolves the format from a file extension.
func FileTypeFromPath(path string) (FileType, bool) {
	return ParseFileType(filepath.Ext(path))
}

// ErrDealerNotFound is returned by stores for an unknown dealer id.
var ErrDealerNotFound = errors.New("dealer not found")

// Dealer is a price-list supplier. Each dealer owns exactly one product set
// that is replaced wholesale by every import.
type Dealer struct {
	ID         int64
	Name       string
	ProviderID *int64

	// DefaultManufacturerID seeds every imported record before the
	// manufacturer column (if any) is applied.
	DefaultManufacturerID *int64

	BaseCurrency Currency
	Separator    string

	// Mapping is the last committed column mapping, JSON encoded.
	Mapping          []byte
	FileType         *FileType
	LastUploadedFile string
	LastUpload       *time.Time
}

// ImportState is written back to the dealer after a successful replacement.
type ImportState struct {
	Mapping    []byte
	FileType   FileType
	FileName   string
	Separator  string
	UploadedAt time.Time
}

// Manufacturer is a brand referenced by products. Names are unique.
type Manufacturer struct {
	ID   int64
	Name string
}

// PriceTier is one entry of a product's tiered price list. Tier 0 is the
// price_for_amount tier, tiers 1..12 come from the numbered column families.
type PriceTier struct {
	Tier     int      `json:"tier"`
	Price    int64    `json:"price"`
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// ProductRecord is one fully assembled product ready for persistence.
type ProductRecord struct {
	DealerID       int64
	ManufacturerID *int64
	Currency       Currency
	Amount         int64
	Price          *int64
	Prices         []PriceTier
	Name           string

	// Attributes holds the verbatim catalog attributes keyed by field name
	// (article, country, weight, ...).
	Attributes map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attribute returns the named attribute or "".
func (p *ProductRecord) Attribute(name string) string {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes[name]
}

// AttributeFields lists the verbatim text attributes in storage column order.
var AttributeFields = []string{
	"article",
	"created_date",
	"weight",
	"country",
	"description",
	"min_order",
	"amount_in_pack",
	"multiplicity",
	"delivery_time",
	"pdf_link",
	"rohc",
	"provider_code",
	"cover",
	"package",
}

// IsAttributeField reports whether name is one of AttributeFields.
func IsAttributeField(name string) bool {
	for _, f := range AttributeFields {
		if f == name {
			return true
		}
	}
	return false
}

// ImportRun is the history entry written for every import attempt.
type ImportRun struct {
	ID          string
	DealerID    int64
	FileName    string
	FileType    FileType
	Status      string
	TotalRows   int
	Kept        int
	Assembled   int
	Deleted     int64
	Inserted    int64
	MissingName int
	Coercions   int
	Error       string
	StartedAt   time.Time
	Duration    time.Duration
}
