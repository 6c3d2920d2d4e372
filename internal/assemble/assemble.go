// Package assemble builds product records from filtered rows.
package assemble

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/filter"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

// IssueKind classifies a row-level problem. None of them abort an import.
type IssueKind string

const (
	// IssueMissingName: the record never received a name and was dropped.
	IssueMissingName IssueKind = "missing_name"
	// IssueCoercion: an integer cell had no leading digits and became 0.
	IssueCoercion IssueKind = "value_coercion"
	// IssueUnknownCurrency: a currency cell did not match the currency table.
	IssueUnknownCurrency IssueKind = "unknown_currency"
)

// MaxIssueSamples bounds the issues kept for reporting.
const MaxIssueSamples = 50

// Issue is one sampled row-level problem. Row is the zero-based data row
// index in the decoded table, Column is -1 for record-level issues.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Row    int       `json:"row"`
	Column int       `json:"column"`
	Field  string    `json:"field,omitempty"`
	Value  string    `json:"value,omitempty"`
}

// Result is the assembled record set plus row-level accounting.
type Result struct {
	Records           []catalog.ProductRecord
	MissingName       int
	Coercions         int
	UnknownCurrencies int
	Issues            []Issue
}

func (r *Result) note(issue Issue) {
	switch issue.Kind {
	case IssueMissingName:
		r.MissingName++
	case IssueCoercion:
		r.Coercions++
	case IssueUnknownCurrency:
		r.UnknownCurrencies++
	}
	if len(r.Issues) < MaxIssueSamples {
		r.Issues = append(r.Issues, issue)
	}
}

// ManufacturerResolver finds or creates a manufacturer by exact name.
type ManufacturerResolver interface {
	Resolve(ctx context.Context, name string) (int64, error)
}

// Assembler turns filtered rows into records for one dealer.
type Assembler struct {
	mapping       *mapping.ColumnMapping
	dealer        catalog.Dealer
	manufacturers ManufacturerResolver
	now           time.Time
}

// New creates an assembler. All records get now as their timestamps.
func New(m *mapping.ColumnMapping, dealer catalog.Dealer, manufacturers ManufacturerResolver, now time.Time) *Assembler {
	return &Assembler{
		mapping:       m,
		dealer:        dealer,
		manufacturers: manufacturers,
		now:           now,
	}
}

// Assemble builds records in row order. It fails only when manufacturer
// resolution fails or ctx is cancelled.
func (a *Assembler) Assemble(ctx context.Context, rows []filter.Row) (*Result, error) {
	res := &Result{Records: make([]catalog.ProductRecord, 0, len(rows))}
	cols := a.mapping.Columns()

	for i, row := range rows {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, ok, err := a.record(ctx, row, cols, res)
		if err != nil {
			return nil, err
		}
		if !ok {
			res.note(Issue{Kind: IssueMissingName, Row: row.Index, Column: -1})
			continue
		}
		res.Records = append(res.Records, rec)
	}

	return res, nil
}

type tierDraft struct {
	price       int64
	amount      int64
	currency    catalog.Currency
	hasCurrency bool
}

func (a *Assembler) record(ctx context.Context, row filter.Row, cols []int, res *Result) (catalog.ProductRecord, bool, error) {
	rec := catalog.ProductRecord{
		DealerID:       a.dealer.ID,
		ManufacturerID: a.dealer.DefaultManufacturerID,
		Currency:       a.dealer.BaseCurrency,
		CreatedAt:      a.now,
		UpdatedAt:      a.now,
	}
	tiers := make(map[int]*tierDraft)
	tier := func(n int) *tierDraft {
		t, ok := tiers[n]
		if !ok {
			t = &tierDraft{}
			tiers[n] = t
		}
		return t
	}
	named := false

	for _, col := range cols {
		rule, _ := a.mapping.Rule(col)
		if !rule.Field.Mapped() || col >= len(row.Cells) {
			continue
		}
		cell := row.Cells[col]
		field := rule.Field

		parse := func() int64 {
			n, ok := ParseInt(cell)
			if !ok {
				res.note(Issue{Kind: IssueCoercion, Row: row.Index, Column: col, Field: field.Name, Value: cell})
			}
			return n
		}

		switch field.Kind {
		case mapping.FieldName:
			rec.Name = strings.TrimSpace(cell)
			named = rec.Name != ""

		case mapping.FieldManufacturer:
			// Names match byte for byte, so " Acme" and "Acme" differ.
			if cell == "" {
				rec.ManufacturerID = nil
				continue
			}
			id, err := a.manufacturers.Resolve(ctx, cell)
			if err != nil {
				return catalog.ProductRecord{}, false, err
			}
			rec.ManufacturerID = &id

		case mapping.FieldCurrency:
			c, ok := catalog.ParseCurrency(cell)
			if !ok && strings.TrimSpace(cell) != "" {
				res.note(Issue{Kind: IssueUnknownCurrency, Row: row.Index, Column: col, Field: field.Name, Value: cell})
			}
			rec.Currency = c

		case mapping.FieldPriceForAmount:
			t := tier(0)
			t.price = parse()
			t.amount = 0
			if rule.AmountForPriceValue != nil {
				t.amount = *rule.AmountForPriceValue
			}
			t.currency, t.hasCurrency = a.dealer.BaseCurrency, true

		case mapping.FieldAmount:
			rec.Amount = addSaturating(rec.Amount, parse())

		case mapping.FieldPrice:
			p := parse()
			rec.Price = &p

		case mapping.FieldTierCurrency:
			if strings.TrimSpace(cell) == "" {
				continue
			}
			c, ok := catalog.ParseCurrency(cell)
			if !ok {
				res.note(Issue{Kind: IssueUnknownCurrency, Row: row.Index, Column: col, Field: field.Name, Value: cell})
				continue
			}
			t := tier(field.Tier)
			t.currency, t.hasCurrency = c, true

		case mapping.FieldTierPrice:
			if v := parse(); v != 0 {
				tier(field.Tier).price = v
			}

		case mapping.FieldTierAmount:
			if v := parse(); v != 0 {
				tier(field.Tier).amount = v
			}

		case mapping.FieldAttribute:
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]string)
			}
			rec.Attributes[field.Name] = cell
		}
	}

	if !named {
		return catalog.ProductRecord{}, false, nil
	}
	if rec.Amount < 0 {
		rec.Amount = 0
	}
	rec.Prices = a.finishTiers(tiers)
	return rec, true, nil
}

// finishTiers drops tiers without a price and defaults missing currencies
// to the dealer's base currency.
func (a *Assembler) finishTiers(tiers map[int]*tierDraft) []catalog.PriceTier {
	out := make([]catalog.PriceTier, 0, len(tiers))
	for n, t := range tiers {
		if t.price == 0 {
			continue
		}
		cur := a.dealer.BaseCurrency
		if t.hasCurrency {
			cur = t.currency
		}
		out = append(out, catalog.PriceTier{Tier: n, Price: t.price, Amount: t.amount, Currency: cur})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}
