package catalog

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
)

// Currency is the persisted currency code of a dealer, product or tier.
type Currency int16

// CurrencyUnknown marks a value that could not be resolved against the
// currency table. It is stored as NULL.
const CurrencyUnknown Currency = -1

const (
	CurrencyRUB Currency = 0
	CurrencyUSD Currency = 1
	CurrencyEUR Currency = 2
	CurrencyCNY Currency = 3
)

// currencyTable maps persisted codes to ISO 4217 codes.
var currencyTable = map[Currency]string{
	CurrencyRUB: money.RUB,
	CurrencyUSD: money.USD,
	CurrencyEUR: money.EUR,
	CurrencyCNY: money.CNY,
}

// lookup is the reverse index: ISO code, plus the currency grapheme, plus
// the colloquial spellings seen in dealer price lists.
var lookup = buildLookup()

func buildLookup() map[string]Currency {
	m := make(map[string]Currency)
	for code, iso := range currencyTable {
		m[iso] = code
		if c := money.GetCurrency(iso); c != nil && c.Grapheme != "" {
			m[strings.ToUpper(c.Grapheme)] = code
		}
	}
	for alias, code := range map[string]Currency{
		"РУБ":  CurrencyRUB,
		"РУБ.": CurrencyRUB,
		"RUR":  CurrencyRUB,
		"₽":    CurrencyRUB,
		"$":    CurrencyUSD,
		"€":    CurrencyEUR,
		"¥":    CurrencyCNY,
	} {
		m[alias] = code
	}
	return m
}

// ParseCurrency resolves the textual value of a price list cell. Matching is
// case-insensitive and ignores surrounding whitespace. Unresolved values
// return CurrencyUnknown and false.
func ParseCurrency(s string) (Currency, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if key == "" {
		return CurrencyUnknown, false
	}
	if code, ok := lookup[key]; ok {
		return code, true
	}
	return CurrencyUnknown, false
}

// Valid reports whether c is a known code.
func (c Currency) Valid() bool {
	_, ok := currencyTable[c]
	return ok
}

// ISO returns the ISO 4217 code, or "" for unknown codes.
func (c Currency) ISO() string {
	return currencyTable[c]
}

func (c Currency) String() string {
	if iso := c.ISO(); iso != "" {
		return iso
	}
	return "unknown"
}

// MarshalText encodes the ISO code so the tier JSON stays readable.
func (c Currency) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return []byte(""), nil
	}
	return []byte(c.ISO()), nil
}

// UnmarshalText accepts anything ParseCurrency accepts. Empty text decodes
// to CurrencyUnknown.
func (c *Currency) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = CurrencyUnknown
		return nil
	}
	code, ok := ParseCurrency(string(text))
	if !ok {
		return fmt.Errorf("unknown currency %q", string(text))
	}
	*c = code
	return nil
}

// Currencies returns the currency table ordered by code.
func Currencies() []Currency {
	return []Currency{CurrencyRUB, CurrencyUSD, CurrencyEUR, CurrencyCNY}
}
