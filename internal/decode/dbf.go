package decode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
)

const (
	dbfHeaderSize     = 32
	dbfDescriptorSize = 32
	dbfTerminator     = 0x0D
	dbfEOF            = 0x1A
	dbfDeleted        = '*'
)

type dbfField struct {
	name     string
	kind     byte
	length   int
	decimals int
}

type dbfHeader struct {
	records   uint32
	headerLen int
	recordLen int
	fields    []dbfField
}

// decodeDBF reads a dBASE III/IV or FoxPro table. Memo fields are
// returned empty since the companion memo file is not read.
func decodeDBF(ctx context.Context, path string, opts Options) (*RawTable, error) {
	cp := opts.Codepage
	if cp == "" {
		cp = DefaultDBFCodepage
	}
	enc, err := LookupCodepage(cp)
	if err != nil {
		return nil, err
	}
	dec := enc.NewDecoder()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	hdr, err := readDBFHeader(r, dec)
	if err != nil {
		return nil, corrupt(path, err)
	}

	table := &RawTable{Header: make([]string, len(hdr.fields))}
	for i, fld := range hdr.fields {
		table.Header[i] = fld.name
	}

	rec := make([]byte, hdr.recordLen)
	for i := uint32(0); i < hdr.records; i++ {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		n, err := io.ReadFull(r, rec)
		if n == 0 && errors.Is(err, io.EOF) {
			break
		}
		if n > 0 && rec[0] == dbfEOF {
			break
		}
		if err != nil {
			return nil, corrupt(path, fmt.Errorf("record %d truncated: %w", i, err))
		}
		if rec[0] == dbfDeleted {
			continue
		}

		row := make([]string, len(hdr.fields))
		off := 1
		for j, fld := range hdr.fields {
			row[j], err = dbfValue(fld, rec[off:off+fld.length], dec)
			if err != nil {
				return nil, corrupt(path, fmt.Errorf("record %d field %s: %w", i, fld.name, err))
			}
			off += fld.length
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func readDBFHeader(r *bufio.Reader, dec *encoding.Decoder) (*dbfHeader, error) {
	var fixed [dbfHeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	hdr := &dbfHeader{
		records:   binary.LittleEndian.Uint32(fixed[4:8]),
		headerLen: int(binary.LittleEndian.Uint16(fixed[8:10])),
		recordLen: int(binary.LittleEndian.Uint16(fixed[10:12])),
	}
	if hdr.headerLen < dbfHeaderSize+1 {
		return nil, fmt.Errorf("header length %d too small", hdr.headerLen)
	}

	consumed := dbfHeaderSize
	var desc [dbfDescriptorSize]byte
	for consumed+dbfDescriptorSize < hdr.headerLen {
		b, err := r.Peek(1)
		if err != nil {
			return nil, fmt.Errorf("read field directory: %w", err)
		}
		if b[0] == dbfTerminator {
			break
		}
		if _, err := io.ReadFull(r, desc[:]); err != nil {
			return nil, fmt.Errorf("read field directory: %w", err)
		}
		consumed += dbfDescriptorSize

		rawName := desc[:11]
		if i := bytes.IndexByte(rawName, 0); i >= 0 {
			rawName = rawName[:i]
		}
		name, err := dec.Bytes(rawName)
		if err != nil {
			return nil, fmt.Errorf("decode field name: %w", err)
		}
		hdr.fields = append(hdr.fields, dbfField{
			name:     strings.TrimSpace(string(name)),
			kind:     desc[11],
			length:   int(desc[16]),
			decimals: int(desc[17]),
		})
	}

	if len(hdr.fields) == 0 {
		return nil, errors.New("no fields in directory")
	}

	width := 1
	for _, f := range hdr.fields {
		width += f.length
	}
	if width != hdr.recordLen {
		return nil, fmt.Errorf("record length %d does not match field widths %d", hdr.recordLen, width)
	}

	// Skip the terminator and any backlink area up to the first record.
	if _, err := r.Discard(hdr.headerLen - consumed); err != nil {
		return nil, fmt.Errorf("skip header: %w", err)
	}
	return hdr, nil
}

func dbfValue(f dbfField, raw []byte, dec *encoding.Decoder) (string, error) {
	switch f.kind {
	case 'C':
		text, err := dec.Bytes(raw)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(text), " \x00"), nil

	case 'N', 'F':
		return strings.TrimSpace(string(raw)), nil

	case 'D':
		s := strings.TrimSpace(string(raw))
		if len(s) != 8 {
			return s, nil
		}
		return s[0:4] + "-" + s[4:6] + "-" + s[6:8], nil

	case 'L':
		switch strings.TrimSpace(string(raw)) {
		case "T", "t", "Y", "y":
			return "1", nil
		case "F", "f", "N", "n":
			return "0", nil
		default:
			return "", nil
		}

	case 'I', '+':
		if len(raw) != 4 {
			return "", fmt.Errorf("integer field width %d", len(raw))
		}
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(raw))), 10), nil

	case 'B', 'O':
		if len(raw) != 8 {
			return strings.TrimSpace(string(raw)), nil
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(raw))
		return strconv.FormatFloat(v, 'f', -1, 64), nil

	case 'Y':
		if len(raw) != 8 {
			return "", fmt.Errorf("currency field width %d", len(raw))
		}
		v := int64(binary.LittleEndian.Uint64(raw))
		return strconv.FormatFloat(float64(v)/10000, 'f', -1, 64), nil

	case 'M', 'G', 'P':
		return "", nil

	default:
		text, err := dec.Bytes(raw)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(text)), nil
	}
}
