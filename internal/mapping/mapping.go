// Package mapping parses dealer column mappings: which source column feeds
// which product field, and how each column is normalized and filtered.
//
// Mappings arrive in the wire shape the dealer admin form submits (a column
// index keyed set of options) either as JSON or YAML. They are parsed once
// into ColumnRule values so the filter and assembly stages never look at
// raw strings again.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownField is returned for a target field outside the catalog.
	ErrUnknownField = errors.New("unknown target field")

	// ErrInvalidRule is returned for malformed column options.
	ErrInvalidRule = errors.New("invalid column rule")
)

// ColumnOption is the wire form of one column's configuration.
type ColumnOption struct {
	Name                string   `json:"name,omitempty" yaml:"name,omitempty"`
	FilterOption        []string `json:"filter_option,omitempty" yaml:"filter_option,omitempty"`
	FilterValue         []string `json:"filter_value,omitempty" yaml:"filter_value,omitempty"`
	FilterTransform     []string `json:"filter_transform_value,omitempty" yaml:"filter_transform_value,omitempty"`
	FilterParameters    []string `json:"filter_parameters,omitempty" yaml:"filter_parameters,omitempty"`
	AmountForPriceValue *int64   `json:"amount_for_price_value,omitempty" yaml:"amount_for_price_value,omitempty"`
}

// ColumnMapping is an immutable, validated column mapping.
type ColumnMapping struct {
	options map[int]ColumnOption
	rules   map[int]ColumnRule
	columns []int
}

// Parse validates wire options and builds the mapping.
func Parse(options map[int]ColumnOption) (*ColumnMapping, error) {
	m := &ColumnMapping{
		options: make(map[int]ColumnOption, len(options)),
		rules:   make(map[int]ColumnRule, len(options)),
	}

	var errs []error
	for col, opt := range options {
		if col < 0 {
			errs = append(errs, fmt.Errorf("%w: negative column index %d", ErrInvalidRule, col))
			continue
		}
		rule, err := parseRule(opt)
		if err != nil {
			errs = append(errs, fmt.Errorf("column %d: %w", col, err))
			continue
		}
		m.options[col] = opt
		m.rules[col] = rule
		m.columns = append(m.columns, col)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.Ints(m.columns)
	return m, nil
}

func parseRule(opt ColumnOption) (ColumnRule, error) {
	field, err := ParseField(opt.Name)
	if err != nil {
		return ColumnRule{}, err
	}

	rule := ColumnRule{
		Field:               field,
		AmountForPriceValue: opt.AmountForPriceValue,
	}

	for _, p := range opt.FilterParameters {
		if strings.TrimSpace(p) == "" {
			continue
		}
		flag, ok := parseTransform(p)
		if !ok {
			return ColumnRule{}, fmt.Errorf("%w: unknown filter parameter %q", ErrInvalidRule, p)
		}
		rule.Transforms |= flag
	}

	// A chain without compare values is ignored, matching the admin form
	// which always posts both lists together.
	if len(opt.FilterOption) > 0 && opt.FilterValue != nil {
		rule.Predicates = make([]Predicate, 0, len(opt.FilterOption))
		for i, kind := range opt.FilterOption {
			rule.Predicates = append(rule.Predicates, Predicate{
				Kind:            ParsePredicateKind(kind),
				CompareValue:    at(opt.FilterValue, i),
				SubstituteValue: at(opt.FilterTransform, i),
			})
		}
	}

	return rule, nil
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// Rule returns the rule configured for a column.
func (m *ColumnMapping) Rule(col int) (ColumnRule, bool) {
	if m == nil {
		return ColumnRule{}, false
	}
	r, ok := m.rules[col]
	return r, ok
}

// Columns returns the configured column indexes in ascending order.
func (m *ColumnMapping) Columns() []int {
	if m == nil {
		return nil
	}
	return append([]int(nil), m.columns...)
}

// Options returns a copy of the wire options.
func (m *ColumnMapping) Options() map[int]ColumnOption {
	out := make(map[int]ColumnOption, len(m.options))
	for k, v := range m.options {
		out[k] = v
	}
	return out
}

// HasField reports whether any column maps to the given field kind.
func (m *ColumnMapping) HasField(kind FieldKind) bool {
	for _, r := range m.rules {
		if r.Field.Kind == kind {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the mapping in its wire form, so the stored mapping
// can prefill the next upload.
func (m *ColumnMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.options)
}

// ParseJSON decodes a JSON wire mapping.
func ParseJSON(data []byte) (*ColumnMapping, error) {
	var opts map[int]ColumnOption
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidRule, err)
	}
	return Parse(opts)
}

// ParseYAML decodes a YAML wire mapping. The document is either a plain
// index keyed map or has it under a top-level "columns" key.
func ParseYAML(data []byte) (*ColumnMapping, error) {
	var doc struct {
		Columns map[int]ColumnOption `yaml:"columns"`
	}
	if err := yaml.Unmarshal(data, &doc); err == nil && doc.Columns != nil {
		return Parse(doc.Columns)
	}

	var opts map[int]ColumnOption
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidRule, err)
	}
	return Parse(opts)
}

// LoadFile reads a mapping file, choosing the decoder by extension.
func LoadFile(path string) (*ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	default:
		return ParseYAML(data)
	}
}
