// Package decode turns dealer price list files into RawTables.
//
// Supported containers are binary dBASE (.dbf), legacy Excel (.xls),
// Office Open XML spreadsheets (.xlsx) and delimited text (.csv/.txt).
// Every decoder yields text cells only; numeric cells are stringified
// without locale formatting so later stages treat all formats alike.
package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
)

var (
	// ErrUnsupportedFormat is returned when the format hint or file
	// extension is not one of the supported containers.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrCorruptFile is returned when a decoder cannot parse the file
	// structure. No partial table accompanies it.
	ErrCorruptFile = errors.New("corrupt file")

	// ErrInvalidSeparator is returned for a delimited-text separator
	// outside the supported set.
	ErrInvalidSeparator = errors.New("invalid separator")

	// ErrUnknownCodepage is returned for an unsupported text encoding name.
	ErrUnknownCodepage = errors.New("unknown codepage")
)

// Separators is the supported set of delimited-text separators.
var Separators = []string{";", ",", "\t"}

// RawTable is a decoded file. Header holds the column labels; every row
// in Rows has exactly len(Header) cells.
type RawTable struct {
	Format catalog.FileType
	Header []string
	Rows   [][]string
}

// Width returns the column count.
func (t *RawTable) Width() int { return len(t.Header) }

// Options tunes decoding.
type Options struct {
	// Separator is required for delimited text; one of Separators.
	Separator string

	// Codepage selects the single-byte encoding of dbf text fields
	// (default cp866) and, when set, of delimited text (default UTF-8).
	Codepage string

	// OnProgress, if set, receives bytes consumed and the file size while
	// delimited text is read.
	OnProgress func(read, total int64)
}

type decoderFunc func(ctx context.Context, path string, opts Options) (*RawTable, error)

var decoders = map[catalog.FileType]decoderFunc{
	catalog.FileTypeDBF:  decodeDBF,
	catalog.FileTypeXLS:  decodeXLS,
	catalog.FileTypeXLSX: decodeXLSX,
	catalog.FileTypeCSV:  decodeDelimited,
}

// Decode reads the file at path. formatHint names the container ("xlsx",
// ".dbf", ...); when empty the file extension decides.
func Decode(ctx context.Context, path, formatHint string, opts Options) (*RawTable, error) {
	ft, err := ResolveFormat(path, formatHint)
	if err != nil {
		return nil, err
	}

	table, err := decoders[ft](ctx, path, opts)
	if err != nil {
		return nil, err
	}
	table.Format = ft
	normalize(table)
	return table, nil
}

// ResolveFormat picks the container type from a hint or the file extension.
func ResolveFormat(path, formatHint string) (catalog.FileType, error) {
	if formatHint != "" {
		if ft, ok := catalog.ParseFileType(formatHint); ok {
			return ft, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, formatHint)
	}
	if ft, ok := catalog.FileTypeFromPath(path); ok {
		return ft, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func corrupt(path string, err error) error {
	return fmt.Errorf("decode %s: %w: %w", path, ErrCorruptFile, err)
}

// normalize pads the header and every row to the widest row, so blank
// header cells never hide data columns.
func normalize(t *RawTable) {
	width := len(t.Header)
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}

	t.Header = pad(t.Header, width)
	for i, row := range t.Rows {
		t.Rows[i] = pad(row, width)
	}
}

func pad(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// checkEvery is how many rows decoders process between cancellation checks.
const checkEvery = 500
