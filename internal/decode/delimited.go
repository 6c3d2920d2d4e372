package decode

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding"
)

// ParseSeparator validates a delimited-text separator. "tab" and a literal
// "\t" escape are accepted for the tab character.
func ParseSeparator(sep string) (rune, error) {
	switch sep {
	case "tab", `\t`:
		sep = "\t"
	}
	for _, s := range Separators {
		if s == sep {
			return rune(sep[0]), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSeparator, sep)
}

// decodeDelimited splits on the caller's separator. Quoted fields follow
// RFC 4180 with lazy quote handling; blank lines are skipped.
func decodeDelimited(ctx context.Context, path string, opts Options) (*RawTable, error) {
	sep, err := ParseSeparator(opts.Separator)
	if err != nil {
		return nil, err
	}

	var enc encoding.Encoding
	if opts.Codepage != "" {
		if enc, err = LookupCodepage(opts.Codepage); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	cr := csv.NewReader(WrapText(f, size, enc, opts.OnProgress))
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	table := &RawTable{}
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return table, nil
	}
	if err != nil {
		return nil, corrupt(path, err)
	}
	table.Header = header

	for i := 0; ; i++ {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt(path, err)
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}
