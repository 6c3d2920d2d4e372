package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
)

// FieldKind classifies a target field. The assembler dispatches on the kind
// instead of re-parsing field names per cell.
type FieldKind int

const (
	FieldNone FieldKind = iota
	FieldName
	FieldManufacturer
	FieldCurrency
	FieldPriceForAmount
	FieldAmount
	FieldPrice
	FieldTierCurrency
	FieldTierPrice
	FieldTierAmount
	FieldAttribute
)

// MaxTier is the highest numbered price tier.
const MaxTier = 12

// Field is a parsed target field name. Tier is set for the numbered
// families, Name always holds the original field name.
type Field struct {
	Kind FieldKind
	Tier int
	Name string
}

func (f Field) String() string { return f.Name }

// Mapped reports whether the column feeds a record field at all.
func (f Field) Mapped() bool { return f.Kind != FieldNone }

var tierFamilies = []struct {
	prefix string
	kind   FieldKind
}{
	{"currency_for_price", FieldTierCurrency},
	{"additional_price", FieldTierPrice},
	{"amount_for_price", FieldTierAmount},
}

// ParseField resolves a raw field name. The empty name means the column is
// not mapped to any field.
func ParseField(name string) (Field, error) {
	name = strings.TrimSpace(name)
	switch name {
	case "":
		return Field{Kind: FieldNone}, nil
	case "name":
		return Field{Kind: FieldName, Name: name}, nil
	case "manufacturer":
		return Field{Kind: FieldManufacturer, Name: name}, nil
	case "currency":
		return Field{Kind: FieldCurrency, Name: name}, nil
	case "price_for_amount":
		return Field{Kind: FieldPriceForAmount, Name: name}, nil
	case "amount", "additional_amount":
		return Field{Kind: FieldAmount, Name: name}, nil
	case "price":
		return Field{Kind: FieldPrice, Name: name}, nil
	}

	for _, fam := range tierFamilies {
		suffix, ok := strings.CutPrefix(name, fam.prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 1 || n > MaxTier || strconv.Itoa(n) != suffix {
			return Field{}, fmt.Errorf("%w: %q (tier must be 1-%d)", ErrUnknownField, name, MaxTier)
		}
		return Field{Kind: fam.kind, Tier: n, Name: name}, nil
	}

	if catalog.IsAttributeField(name) {
		return Field{Kind: FieldAttribute, Name: name}, nil
	}
	return Field{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// FieldInfo describes a selectable target field for mapping UIs.
type FieldInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

var baseFields = []FieldInfo{
	{"manufacturer", "Manufacturer"},
	{"name", "Name"},
	{"article", "Article"},
	{"created_date", "Year of manufacture"},
	{"weight", "Weight"},
	{"country", "Country of origin"},
	{"description", "Description"},
	{"min_order", "Minimum order quantity"},
	{"amount_in_pack", "Quantity per pack"},
	{"multiplicity", "Order multiple"},
	{"amount", "Stock quantity"},
	{"price", "Unit price"},
	{"currency", "Unit price currency"},
	{"additional_amount", "Add to stock quantity"},
	{"delivery_time", "Delivery time"},
	{"pdf_link", "PDF link"},
	{"rohc", "ROHC"},
	{"provider_code", "Provider code"},
	{"cover", "Product image"},
	{"package", "Unit type"},
	{"price_for_amount", "Price for quantity"},
}

// Fields returns the full target field catalog in display order.
func Fields() []FieldInfo {
	out := make([]FieldInfo, 0, len(baseFields)+3*MaxTier)
	out = append(out, baseFields...)
	for n := 1; n <= MaxTier; n++ {
		out = append(out, FieldInfo{fmt.Sprintf("currency_for_price%d", n), fmt.Sprintf("Currency for price %d", n)})
	}
	for n := 1; n <= MaxTier; n++ {
		out = append(out, FieldInfo{fmt.Sprintf("additional_price%d", n), fmt.Sprintf("Additional price %d", n)})
	}
	for n := 1; n <= MaxTier; n++ {
		out = append(out, FieldInfo{fmt.Sprintf("amount_for_price%d", n), fmt.Sprintf("Quantity for price %d", n)})
	}
	return out
}
