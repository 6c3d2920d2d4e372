// Package filter applies per-column transforms and predicate chains to
// decoded rows.
//
// Evaluation is a pure function of (cell, rule): it returns the rewritten
// cell and a verdict. Columns are visited in ascending index order and the
// first rejecting or accepting verdict settles the row.
package filter

import (
	"strings"

	"github.com/JonMunkholm/dealerprice/internal/decode"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

// Verdict is the outcome of evaluating one column.
type Verdict int

const (
	// Continue leaves the decision to later columns.
	Continue Verdict = iota
	// Reject drops the whole row.
	Reject
	// Accept keeps the whole row without evaluating later predicates.
	Accept
)

func (v Verdict) String() string {
	switch v {
	case Reject:
		return "reject"
	case Accept:
		return "accept"
	default:
		return "continue"
	}
}

// Row is a surviving row. Index is the zero-based data row position in
// the decoded table, used for issue reporting.
type Row struct {
	Index int
	Cells []string
}

// Stats counts rows per outcome.
type Stats struct {
	Total    int
	Kept     int
	Rejected int
	Accepted int
}

// Transform applies the rule's transform flags in their fixed order.
func Transform(cell string, flags mapping.Transform) string {
	if flags.Has(mapping.RemoveSpaces) {
		cell = strings.ReplaceAll(cell, " ", "")
	}
	if flags.Has(mapping.RemoveCommas) {
		cell = strings.ReplaceAll(cell, ",", "")
	}
	if flags.Has(mapping.RemoveDots) {
		cell = strings.ReplaceAll(cell, ".", "")
	}
	if flags.Has(mapping.TruncateAtFirstDot) {
		if i := strings.IndexByte(cell, '.'); i >= 0 {
			cell = cell[:i]
		}
	}
	if flags.Has(mapping.TruncateAtFirstComma) {
		if i := strings.IndexByte(cell, ','); i >= 0 {
			cell = cell[:i]
		}
	}
	return cell
}

// Predicates runs a predicate chain against an already transformed cell.
func Predicates(cell string, preds []mapping.Predicate) (string, Verdict) {
	for _, p := range preds {
		switch p.Kind {
		case mapping.PredicateIgnoreIfEqual:
			if cell == p.CompareValue {
				return cell, Reject
			}
		case mapping.PredicateUploadIfEqual:
			if cell == p.CompareValue {
				return cell, Accept
			}
		case mapping.PredicateIsEqualTo:
			if p.CompareValue != "" && strings.Contains(cell, p.CompareValue) {
				cell = strings.ReplaceAll(cell, p.CompareValue, p.SubstituteValue)
			}
		default:
			return cell, Continue
		}
	}
	return cell, Continue
}

// EvaluateCell transforms a cell and runs its predicate chain.
func EvaluateCell(cell string, rule mapping.ColumnRule) (string, Verdict) {
	return Predicates(Transform(cell, rule.Transforms), rule.Predicates)
}

// EvaluateRow returns the rewritten cells and whether the row survives.
// The input slice is not modified. After an accepting column the remaining
// columns are still transformed but their predicates are skipped.
func EvaluateRow(cells []string, m *mapping.ColumnMapping) ([]string, Verdict) {
	out := append([]string(nil), cells...)
	verdict := Continue

	for _, col := range m.Columns() {
		if col >= len(out) {
			break
		}
		rule, _ := m.Rule(col)

		if verdict == Accept {
			out[col] = Transform(out[col], rule.Transforms)
			continue
		}

		var v Verdict
		out[col], v = EvaluateCell(out[col], rule)
		switch v {
		case Reject:
			return nil, Reject
		case Accept:
			verdict = Accept
		}
	}

	return out, verdict
}

// Rows filters the data rows of a table. Output order matches input order.
func Rows(table *decode.RawTable, m *mapping.ColumnMapping) ([]Row, Stats) {
	stats := Stats{Total: len(table.Rows)}
	out := make([]Row, 0, len(table.Rows))

	for i, cells := range table.Rows {
		rewritten, v := EvaluateRow(cells, m)
		switch v {
		case Reject:
			stats.Rejected++
			continue
		case Accept:
			stats.Accepted++
		}
		out = append(out, Row{Index: i, Cells: rewritten})
	}

	stats.Kept = len(out)
	return out, stats
}
