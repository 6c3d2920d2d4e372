package decode

// textio.go holds the reader chain used for delimited text:
//
//	file -> counting -> codepage decoder (optional) -> BOM skip -> UTF-8 sanitizer -> csv.Reader
//
// Every stage streams, so memory stays bounded by buffer sizes rather than
// file size.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader positioned after a leading UTF-8 byte order
// mark, if any. Windows exporters commonly write one.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces each invalid UTF-8 byte with '?'. Valid multi-byte
// sequences split across reads are preserved.
type UTF8Sanitizer struct {
	r *bufio.Reader
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		r, size, err := s.r.ReadRune()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}

		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
		} else {
			if n+size > len(p) {
				_ = s.r.UnreadRune()
				if n == 0 {
					return 0, io.ErrShortBuffer
				}
				return n, nil
			}
			n += utf8.EncodeRune(p[n:], r)
		}

		// Do not block for more input once something is ready.
		if s.r.Buffered() == 0 {
			break
		}
	}
	return n, nil
}

// CountingReader tracks bytes read from the underlying file.
type CountingReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    func(read, total int64)
}

// NewCountingReader wraps r; fn may be nil.
func NewCountingReader(r io.Reader, total int64, fn func(read, total int64)) *CountingReader {
	return &CountingReader{r: r, total: total, fn: fn}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.fn != nil && n > 0 {
		c.fn(c.read, c.total)
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (c *CountingReader) BytesRead() int64 { return c.read }

// WrapText builds the delimited-text reader chain. enc may be nil for
// UTF-8 input.
func WrapText(r io.Reader, total int64, enc encoding.Encoding, fn func(read, total int64)) io.Reader {
	var out io.Reader = NewCountingReader(r, total, fn)
	if enc != nil && !isUTF8(enc) {
		out = enc.NewDecoder().Reader(out)
	}
	return NewUTF8Sanitizer(SkipBOM(out))
}
