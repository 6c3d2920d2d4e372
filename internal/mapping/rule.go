package mapping

import "strings"

// PredicateKind selects how a predicate reacts to a cell value.
type PredicateKind int

const (
	// PredicatePass ends the column's predicate chain without a verdict.
	// Unknown kinds parse to it.
	PredicatePass PredicateKind = iota
	PredicateIgnoreIfEqual
	PredicateUploadIfEqual
	PredicateIsEqualTo
)

var predicateNames = map[PredicateKind]string{
	PredicatePass:          "pass",
	PredicateIgnoreIfEqual: "ignore_if_equal",
	PredicateUploadIfEqual: "upload_if_equal",
	PredicateIsEqualTo:     "is_equal_to",
}

func (k PredicateKind) String() string { return predicateNames[k] }

// ParsePredicateKind maps a wire name to a kind. Unrecognized names become
// PredicatePass.
func ParsePredicateKind(s string) PredicateKind {
	switch strings.TrimSpace(s) {
	case "ignore_if_equal":
		return PredicateIgnoreIfEqual
	case "upload_if_equal":
		return PredicateUploadIfEqual
	case "is_equal_to":
		return PredicateIsEqualTo
	default:
		return PredicatePass
	}
}

// Predicate is one entry of a column's ordered filter chain.
type Predicate struct {
	Kind            PredicateKind
	CompareValue    string
	SubstituteValue string
}

// Transform is a set of cell normalization flags applied before predicates.
type Transform uint8

const (
	RemoveSpaces Transform = 1 << iota
	RemoveCommas
	RemoveDots
	TruncateAtFirstDot
	TruncateAtFirstComma
)

var transformNames = []struct {
	flag Transform
	name string
}{
	{RemoveSpaces, "strip_spaces"},
	{RemoveCommas, "strip_commas"},
	{RemoveDots, "strip_dots"},
	{TruncateAtFirstDot, "truncate_at_first_dot"},
	{TruncateAtFirstComma, "truncate_at_first_comma"},
}

// transformAliases are the names posted by the dealer admin form.
var transformAliases = map[string]Transform{
	"remove_spaces":        RemoveSpaces,
	"remove_commas":        RemoveCommas,
	"remove_dot":           RemoveDots,
	"clear_right_of_dot":   TruncateAtFirstDot,
	"clear_right_of_comma": TruncateAtFirstComma,
}

// Has reports whether all bits of flag are set.
func (t Transform) Has(flag Transform) bool { return t&flag == flag }

// Names returns the names of the set flags in application order.
func (t Transform) Names() []string {
	var out []string
	for _, tn := range transformNames {
		if t.Has(tn.flag) {
			out = append(out, tn.name)
		}
	}
	return out
}

func parseTransform(name string) (Transform, bool) {
	name = strings.TrimSpace(name)
	if flag, ok := transformAliases[name]; ok {
		return flag, true
	}
	for _, tn := range transformNames {
		if tn.name == name {
			return tn.flag, true
		}
	}
	return 0, false
}

// ColumnRule is the parsed configuration of one source column.
type ColumnRule struct {
	Field      Field
	Transforms Transform
	Predicates []Predicate

	// AmountForPriceValue is the quantity of the price_for_amount tier.
	AmountForPriceValue *int64
}
