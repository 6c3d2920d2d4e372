package decode

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

type testField struct {
	name   string
	kind   byte
	length int
}

type testRecord struct {
	deleted bool
	values  []string
}

// buildDBF renders a dBASE III table with CP866 text fields.
func buildDBF(t *testing.T, fields []testField, records []testRecord) []byte {
	t.Helper()

	recordLen := 1
	for _, f := range fields {
		recordLen += f.length
	}
	headerLen := 32 + 32*len(fields) + 1

	var buf bytes.Buffer
	hdr := make([]byte, 32)
	hdr[0] = 0x03
	hdr[1], hdr[2], hdr[3] = 124, 1, 31
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(records)))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(recordLen))
	buf.Write(hdr)

	for _, f := range fields {
		desc := make([]byte, 32)
		copy(desc[:11], f.name)
		desc[11] = f.kind
		desc[16] = byte(f.length)
		buf.Write(desc)
	}
	buf.WriteByte(0x0D)

	enc := charmap.CodePage866.NewEncoder()
	for _, rec := range records {
		if rec.deleted {
			buf.WriteByte('*')
		} else {
			buf.WriteByte(' ')
		}
		for i, f := range fields {
			raw, err := enc.Bytes([]byte(rec.values[i]))
			if err != nil {
				t.Fatalf("encode %q: %v", rec.values[i], err)
			}
			cell := bytes.Repeat([]byte{' '}, f.length)
			if f.kind == 'N' {
				copy(cell[f.length-len(raw):], raw)
			} else {
				copy(cell, raw)
			}
			buf.Write(cell)
		}
	}
	buf.WriteByte(0x1A)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// buildXLSX writes rows to the first sheet. Cells that are float64 are
// stored as numbers, everything else as strings.
func buildXLSX(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, v := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			switch val := v.(type) {
			case float64:
				err = f.SetCellFloat(sheet, ref, val, -1, 64)
			case string:
				err = f.SetCellStr(sheet, ref, val)
			default:
				err = f.SetCellValue(sheet, ref, val)
			}
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "prices.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustDecoder(t *testing.T) *encoding.Decoder {
	t.Helper()
	enc, err := LookupCodepage(DefaultDBFCodepage)
	if err != nil {
		t.Fatal(err)
	}
	return enc.NewDecoder()
}
