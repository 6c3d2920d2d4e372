package decode

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DefaultDBFCodepage is the code page of dbf exports from DOS-era
// accounting systems.
const DefaultDBFCodepage = "cp866"

var codepages = map[string]encoding.Encoding{
	"cp866":        charmap.CodePage866,
	"ibm866":       charmap.CodePage866,
	"866":          charmap.CodePage866,
	"cp1251":       charmap.Windows1251,
	"windows-1251": charmap.Windows1251,
	"1251":         charmap.Windows1251,
	"koi8-r":       charmap.KOI8R,
	"koi8r":        charmap.KOI8R,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
}

// LookupCodepage resolves a code page name.
func LookupCodepage(name string) (encoding.Encoding, error) {
	enc, ok := codepages[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodepage, name)
	}
	return enc, nil
}

// isUTF8 reports whether enc needs no transcoding.
func isUTF8(enc encoding.Encoding) bool {
	return enc == unicode.UTF8
}
