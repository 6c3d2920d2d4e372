package decode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// BIFF record ids read by the legacy workbook decoder.
const (
	recFormula    = 0x0006
	recEOF        = 0x000A
	recContinue   = 0x003C
	recCodepage   = 0x0042
	recBoundSheet = 0x0085
	recMulRK      = 0x00BD
	recRString    = 0x00D6
	recSST        = 0x00FC
	recLabelSST   = 0x00FD
	recNumber     = 0x0203
	recLabel      = 0x0204
	recBoolErr    = 0x0205
	recString     = 0x0207
	recRK         = 0x027E
	recBOF        = 0x0809
)

const (
	biff5 = 0x0500
	biff8 = 0x0600

	sheetKindWorksheet = 0x00
)

var errTruncated = errors.New("truncated record")

// Code pages a BIFF5 CODEPAGE record can name for its byte strings.
var biffCodepages = map[uint16]encoding.Encoding{
	866:   charmap.CodePage866,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	10007: charmap.MacintoshCyrillic,
	20866: charmap.KOI8R,
	28591: charmap.ISO8859_1,
}

var cellErrors = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
}

type record struct {
	id   uint16
	data []byte
	// continues holds the bodies of the CONTINUE records that follow.
	continues [][]byte
}

// readRecord returns the record at off together with its CONTINUE records,
// and the offset of the next record.
func readRecord(stream []byte, off int) (record, int, error) {
	if off < 0 || off+4 > len(stream) {
		return record{}, off, errTruncated
	}
	id := binary.LittleEndian.Uint16(stream[off:])
	n := int(binary.LittleEndian.Uint16(stream[off+2:]))
	off += 4
	if off+n > len(stream) {
		return record{}, off, fmt.Errorf("record %#04x: %w", id, errTruncated)
	}
	rec := record{id: id, data: stream[off : off+n]}
	off += n

	for off+4 <= len(stream) && binary.LittleEndian.Uint16(stream[off:]) == recContinue {
		n := int(binary.LittleEndian.Uint16(stream[off+2:]))
		if off+4+n > len(stream) {
			return record{}, off, fmt.Errorf("continue of %#04x: %w", id, errTruncated)
		}
		rec.continues = append(rec.continues, stream[off+4:off+4+n])
		off += 4 + n
	}
	return rec, off, nil
}

// biffReader reads little-endian values across a record and its
// CONTINUE bodies. The first read past the end sets err; later reads
// return zero values.
type biffReader struct {
	cur    []byte
	chunks [][]byte
	err    error
}

func newBIFFReader(rec record) *biffReader {
	return &biffReader{cur: rec.data, chunks: rec.continues}
}

func (r *biffReader) nextChunk() bool {
	if len(r.chunks) == 0 {
		if r.err == nil {
			r.err = errTruncated
		}
		return false
	}
	r.cur, r.chunks = r.chunks[0], r.chunks[1:]
	return true
}

func (r *biffReader) u8() byte {
	for len(r.cur) == 0 {
		if !r.nextChunk() {
			return 0
		}
	}
	b := r.cur[0]
	r.cur = r.cur[1:]
	return b
}

func (r *biffReader) u16() uint16 {
	lo := r.u8()
	return uint16(lo) | uint16(r.u8())<<8
}

func (r *biffReader) u32() uint32 {
	lo := r.u16()
	return uint32(lo) | uint32(r.u16())<<16
}

func (r *biffReader) skip(n int) {
	for n > 0 {
		if len(r.cur) == 0 {
			if !r.nextChunk() {
				return
			}
			continue
		}
		k := min(n, len(r.cur))
		r.cur = r.cur[k:]
		n -= k
	}
}

// unicodeString reads a BIFF8 string body that follows its character
// count: option flags, optional rich-text and extension sizes, characters.
func (r *biffReader) unicodeString(cch int) string {
	flags := r.u8()
	var runs, ext int
	if flags&0x08 != 0 {
		runs = int(r.u16())
	}
	if flags&0x04 != 0 {
		ext = int(r.u32())
	}
	s := r.chars(cch, flags&0x01 != 0)
	r.skip(4*runs + ext)
	return s
}

// chars reads cch UTF-16 code units, stored one byte each unless wide.
// A string split by a CONTINUE record restarts with a new option byte.
func (r *biffReader) chars(cch int, wide bool) string {
	units := make([]uint16, 0, min(cch, 1<<12))
	for len(units) < cch && r.err == nil {
		if len(r.cur) == 0 {
			if !r.nextChunk() {
				break
			}
			if len(r.cur) == 0 {
				continue
			}
			wide = r.cur[0]&0x01 != 0
			r.cur = r.cur[1:]
			continue
		}
		if wide {
			units = append(units, r.u16())
		} else {
			units = append(units, uint16(r.u8()))
		}
	}
	return string(utf16.Decode(units))
}

func (r *biffReader) byteString(n int, dec *encoding.Decoder) string {
	raw := make([]byte, 0, min(n, 1<<12))
	for i := 0; i < n && r.err == nil; i++ {
		raw = append(raw, r.u8())
	}
	if out, err := dec.Bytes(raw); err == nil {
		return string(out)
	}
	return string(raw)
}

type sheetEntry struct {
	offset int
	kind   byte
	name   string
}

// workbook is the parsed globals substream of a BIFF5 or BIFF8 stream.
type workbook struct {
	stream  []byte
	version uint16
	sst     []string
	sheets  []sheetEntry
	text    encoding.Encoding
}

func parseWorkbook(stream []byte) (*workbook, error) {
	rec, off, err := readRecord(stream, 0)
	if err != nil || rec.id != recBOF || len(rec.data) < 2 {
		return nil, errors.New("missing workbook BOF record")
	}

	wb := &workbook{
		stream:  stream,
		version: binary.LittleEndian.Uint16(rec.data),
		text:    charmap.Windows1252,
	}
	if wb.version != biff5 && wb.version != biff8 {
		return nil, fmt.Errorf("unsupported BIFF version %#04x", wb.version)
	}

	for {
		rec, off, err = readRecord(stream, off)
		if err != nil {
			return nil, fmt.Errorf("workbook globals: %w", err)
		}
		switch rec.id {
		case recEOF:
			return wb, nil
		case recCodepage:
			if len(rec.data) >= 2 {
				if enc, ok := biffCodepages[binary.LittleEndian.Uint16(rec.data)]; ok {
					wb.text = enc
				}
			}
		case recBoundSheet:
			if err := wb.addSheet(rec); err != nil {
				return nil, err
			}
		case recSST:
			if err := wb.readSST(rec); err != nil {
				return nil, err
			}
		}
	}
}

func (wb *workbook) addSheet(rec record) error {
	r := newBIFFReader(rec)
	entry := sheetEntry{offset: int(r.u32())}
	r.u8() // visibility
	entry.kind = r.u8()
	cch := int(r.u8())
	if wb.version == biff8 {
		entry.name = r.unicodeString(cch)
	} else {
		entry.name = r.byteString(cch, wb.text.NewDecoder())
	}
	if r.err != nil {
		return fmt.Errorf("sheet entry: %w", r.err)
	}
	wb.sheets = append(wb.sheets, entry)
	return nil
}

func (wb *workbook) readSST(rec record) error {
	r := newBIFFReader(rec)
	r.u32() // total references
	unique := int(r.u32())
	if r.err != nil {
		return fmt.Errorf("shared strings: %w", r.err)
	}

	wb.sst = make([]string, 0, min(unique, 1<<16))
	for i := 0; i < unique; i++ {
		s := r.unicodeString(int(r.u16()))
		if r.err != nil {
			return fmt.Errorf("shared string %d of %d: %w", i, unique, r.err)
		}
		wb.sst = append(wb.sst, s)
	}
	return nil
}

// firstWorksheet returns the first sheet that holds cells. Chart and
// macro sheets are skipped.
func (wb *workbook) firstWorksheet() (sheetEntry, bool) {
	for _, s := range wb.sheets {
		if s.kind == sheetKindWorksheet {
			return s, true
		}
	}
	return sheetEntry{}, false
}

// grid collects cells by position; gaps stay empty.
type grid struct {
	rows [][]string
}

func (g *grid) set(row, col int, v string) {
	for len(g.rows) <= row {
		g.rows = append(g.rows, nil)
	}
	cells := g.rows[row]
	for len(cells) <= col {
		cells = append(cells, "")
	}
	cells[col] = v
	g.rows[row] = cells
}

type cellPos struct{ row, col int }

// sheetReader accumulates the cells of one worksheet substream.
type sheetReader struct {
	wb   *workbook
	grid grid
	// pending is the formula cell waiting for its STRING record.
	pending *cellPos
}

// readSheet reads the cell values of one worksheet substream. Numbers are
// rendered from their stored value with formatNumber, ignoring the cell's
// number format, so dates arrive as serial numbers like in xlsx. Formula
// cells yield their cached result.
func (wb *workbook) readSheet(ctx context.Context, sh sheetEntry) ([][]string, error) {
	rec, off, err := readRecord(wb.stream, sh.offset)
	if err != nil || rec.id != recBOF {
		return nil, fmt.Errorf("sheet %q: missing BOF record", sh.name)
	}

	sr := &sheetReader{wb: wb}
	depth := 1
	for n := 1; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, off, err = readRecord(wb.stream, off)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sh.name, err)
		}

		// Embedded charts are nested BOF..EOF substreams.
		switch rec.id {
		case recBOF:
			depth++
			continue
		case recEOF:
			depth--
			if depth == 0 {
				return sr.grid.rows, nil
			}
			continue
		}
		if depth > 1 {
			continue
		}

		if err := sr.readCell(rec); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sh.name, err)
		}
	}
}

func (sr *sheetReader) readCell(rec record) error {
	d, g, wb := rec.data, &sr.grid, sr.wb
	need := func(n int) error {
		if len(d) < n {
			return fmt.Errorf("record %#04x: %w", rec.id, errTruncated)
		}
		return nil
	}
	pos := func() (int, int) {
		return int(binary.LittleEndian.Uint16(d)), int(binary.LittleEndian.Uint16(d[2:]))
	}

	switch rec.id {
	case recNumber:
		if err := need(14); err != nil {
			return err
		}
		row, col := pos()
		g.set(row, col, formatNumber(math.Float64frombits(binary.LittleEndian.Uint64(d[6:]))))

	case recRK:
		if err := need(10); err != nil {
			return err
		}
		row, col := pos()
		g.set(row, col, formatNumber(rkValue(binary.LittleEndian.Uint32(d[6:]))))

	case recMulRK:
		if err := need(6); err != nil {
			return err
		}
		// row, first column, (xf, rk) pairs, last column
		row, col := pos()
		n := (len(d) - 6) / 6
		for i := 0; i < n; i++ {
			g.set(row, col+i, formatNumber(rkValue(binary.LittleEndian.Uint32(d[4+i*6+2:]))))
		}

	case recLabelSST:
		if err := need(10); err != nil {
			return err
		}
		row, col := pos()
		idx := int(binary.LittleEndian.Uint32(d[6:]))
		if idx >= len(wb.sst) {
			return fmt.Errorf("shared string %d out of range (%d strings)", idx, len(wb.sst))
		}
		g.set(row, col, wb.sst[idx])

	case recLabel, recRString:
		if err := need(8); err != nil {
			return err
		}
		row, col := pos()
		r := newBIFFReader(rec)
		r.skip(6)
		s := wb.string(r)
		if r.err != nil {
			return fmt.Errorf("label: %w", r.err)
		}
		g.set(row, col, s)

	case recBoolErr:
		if err := need(8); err != nil {
			return err
		}
		row, col := pos()
		g.set(row, col, boolErrText(d[6], d[7] != 0))

	case recFormula:
		if err := need(14); err != nil {
			return err
		}
		row, col := pos()
		sr.pending = nil
		result := d[6:14]
		if result[6] != 0xFF || result[7] != 0xFF {
			g.set(row, col, formatNumber(math.Float64frombits(binary.LittleEndian.Uint64(result))))
			return nil
		}
		switch result[0] {
		case 0x00: // text result, arrives in the next STRING record
			sr.pending = &cellPos{row, col}
		case 0x01:
			g.set(row, col, boolErrText(result[2], false))
		case 0x02:
			g.set(row, col, boolErrText(result[2], true))
		default:
			g.set(row, col, "")
		}

	case recString:
		if sr.pending == nil {
			return nil
		}
		r := newBIFFReader(rec)
		s := wb.string(r)
		if r.err != nil {
			return fmt.Errorf("formula string: %w", r.err)
		}
		g.set(sr.pending.row, sr.pending.col, s)
		sr.pending = nil
	}
	return nil
}

// string reads a length-prefixed cell string in the workbook's encoding.
func (wb *workbook) string(r *biffReader) string {
	n := int(r.u16())
	if wb.version == biff8 {
		return r.unicodeString(n)
	}
	return r.byteString(n, wb.text.NewDecoder())
}

func boolErrText(v byte, isErr bool) string {
	if isErr {
		return cellErrors[v]
	}
	if v != 0 {
		return "1"
	}
	return "0"
}

// rkValue decodes an RK number: a 30-bit integer or the high 30 bits of a
// double, optionally divided by 100.
func rkValue(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&^0x03) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}
