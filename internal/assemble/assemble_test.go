package assemble

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/filter"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

type fakeManufacturers struct {
	mu      sync.Mutex
	byName  map[string]catalog.Manufacturer
	nextID  int64
	upserts int
	err     error
}

func newFakeManufacturers(existing ...string) *fakeManufacturers {
	f := &fakeManufacturers{byName: map[string]catalog.Manufacturer{}, nextID: 1}
	for _, name := range existing {
		f.byName[name] = catalog.Manufacturer{ID: f.nextID, Name: name}
		f.nextID++
	}
	return f
}

func (f *fakeManufacturers) ListManufacturers(ctx context.Context) ([]catalog.Manufacturer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]catalog.Manufacturer, 0, len(f.byName))
	for _, m := range f.byName {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeManufacturers) UpsertManufacturer(ctx context.Context, name string) (catalog.Manufacturer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return catalog.Manufacturer{}, false, f.err
	}
	f.upserts++
	if m, ok := f.byName[name]; ok {
		return m, false, nil
	}
	m := catalog.Manufacturer{ID: f.nextID, Name: name}
	f.nextID++
	f.byName[name] = m
	return m, true, nil
}

func mustMapping(t *testing.T, opts map[int]mapping.ColumnOption) *mapping.ColumnMapping {
	t.Helper()
	m, err := mapping.Parse(opts)
	if err != nil {
		t.Fatalf("mapping.Parse() error = %v", err)
	}
	return m
}

func rowsOf(cells ...[]string) []filter.Row {
	out := make([]filter.Row, len(cells))
	for i, c := range cells {
		out[i] = filter.Row{Index: i, Cells: c}
	}
	return out
}

var testDealer = catalog.Dealer{ID: 42, BaseCurrency: catalog.CurrencyRUB}

func assemble(t *testing.T, m *mapping.ColumnMapping, dealer catalog.Dealer, store *fakeManufacturers, rows []filter.Row) *Result {
	t.Helper()
	set, err := LoadManufacturerSet(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadManufacturerSet() error = %v", err)
	}
	res, err := New(m, dealer, set, time.Unix(1700000000, 0)).Assemble(context.Background(), rows)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	return res
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"", 0, true},
		{"  ", 0, true},
		{"500", 500, true},
		{" 42 ", 42, true},
		{"-3", -3, true},
		{"+7", 7, true},
		{"12.50", 12, true},
		{"7 pcs", 7, true},
		{"abc", 0, false},
		{"-", 0, false},
		{"$5", 0, false},
		{"99999999999999999999", 9223372036854775807, true},
	}
	for _, tt := range tests {
		got, ok := ParseInt(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseInt(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAssemble_BasicFields(t *testing.T) {
	m := mustMapping(t, map[int]mapping.ColumnOption{
		0: {Name: "name"},
		1: {Name: "amount"},
		2: {Name: "price"},
		3: {Name: "article"},
	})
	res := assemble(t, m, testDealer, newFakeManufacturers(), rowsOf(
		[]string{"Widget", "10", "500", "W-1"},
		[]string{"Gadget", "0", "0", ""},
	))

	if len(res.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(res.Records))
	}
	w := res.Records[0]
	if w.Name != "Widget" || w.Amount != 10 || w.Price == nil || *w.Price != 500 {
		t.Errorf("Widget = %+v", w)
	}
	if w.DealerID != 42 || w.Currency != catalog.CurrencyRUB {
		t.Errorf("Widget dealer/currency = %d/%v", w.DealerID, w.Currency)
	}
	if w.Attribute("article") != "W-1" {
		t.Errorf("article = %q, want W-1", w.Attribute("article"))
	}
	g := res.Records[1]
	if g.Name != "Gadget" || g.Amount != 0 || g.Price == nil || *g.Price != 0 {
		t.Errorf("Gadget = %+v", g)
	}
	if len(w.Prices) != 0 {
		t.Errorf("Prices = %+v, want none", w.Prices)
	}
}

func TestAssemble_AmountAggregation(t *testing.T) {
	m := mustMapping(t, map[int]mapping.ColumnOption{
		0: {Name: "name"},
		1: {Name: "amount"},
		2: {Name: "additional_amount"},
	})
	tests := []struct {
		name             string
		amount, addition string
		want             int64
	}{
		{"sum", "5", "3", 8},
		{"saturates at max", "9223372036854775807", "5", math.MaxInt64},
		{"both overflow", "99999999999999999999", "99999999999999999999", math.MaxInt64},
		{"negative saturates then clamps", "-9223372036854775807", "-9", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := assemble(t, m, testDealer, newFakeManufacturers(), rowsOf([]string{"Bolt", tt.amount, tt.addition}))
			if got := res.Records[0].Amount; got != tt.want {
				t.Errorf("Amount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAddSaturating(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{2, 3, 5},
		{math.MaxInt64, 1, math.MaxInt64},
		{math.MaxInt64 - 1, 1, math.MaxInt64},
		{math.MinInt64, -1, math.MinInt64},
		{math.MinInt64, math.MaxInt64, -1},
		{-4, 4, 0},
	}
	for _, tt := range tests {
		if got := addSaturating(tt.a, tt.b); got != tt.want {
			t.Errorf("addSaturating(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAssemble_TierScenario(t *testing.T) {
	m := mustMapping(t, map[int]mapping.ColumnOption{
		0: {Name: "name"},
		1: {Name: "currency_for_price1"},
		2: {Name: "additional_price1"},
		3: {Name: "amount_for_price1"},
	})
	res := assemble(t, m, testDealer, newFakeManufacturers(), rowsOf([]string{"Relay", "USD", "999", "5"}))

	want := []catalog.PriceTier{{Tier: 1, Price: 999, Amount: 5, Currency: catalog.CurrencyUSD}}
	if !reflect.DeepEqual(res.Records[0].Prices, want) {
		t.Errorf("Prices = %+v, want %+v", res.Records[0].Prices, want)
	}
}

func TestAssemble_TierPruningAndDefaults(t *testing.T) {
	qty := int64(100)
	m := mustMapping(t, map[int]mapping.ColumnOption{
		0: {Name: "name"},
		1: {Name: "amount_for_price2"},
		2: {Name: "additional_price3"},
		3: {Name: "price_for_amount", AmountForPriceValue: &qty},
		4: {Name: "currency_for_price3"},
	})
	res := assemble(t, m, testDealer, newFakeManufacturers(), rowsOf(
		[]string{"Fuse", "50", "70", "45", "XYZ"},
		[]string{"Cap", "50", "", "0", ""},
	))

	want := []catalog.PriceTier{
		{Tier: 0, Price: 45, Amount: 100, Currency: catalog.CurrencyRUB},
		{Tier: 3, Price: 70, Amount: 0, Currency: catalog.CurrencyRUB},
	}
	if !reflect.DeepEqual(res.Records[0].Prices, want) {
		t.Errorf("Fuse Prices = %+v, want %+v", res.Records[0].Prices, want)
	}
	if len(res.Records[1].Prices) != 0 {
		t.Errorf("Cap Prices = %+v, want amount-only tiers pruned", res.Records[1].Prices)
	}
	if res.UnknownCurrencies != 1 {
		t.Errorf("UnknownCurrencies = %d, want 1", res.UnknownCurrencies)
	}
}

func TestAssemble_Currency(t *testing.T) {
	m := mustMapping(t, map[int]mapping.ColumnOption{
		0: {Name: "name"},
		1: {Name: "currency"},
	})
	res := assemble(t, m, testDealer, newFakeManufacturers(), rowsOf(
		[]string{"A", "EUR"},
		[]string{"B", "doubloons"},
	))
	if res.Records[0].Currency != catalog.CurrencyEUR {
		t.Errorf("A currency = %v, want EUR", res.Records[0].Currency)
	}
	if res.Records[1].Currency != catalog.CurrencyUnknown {
		t.Errorf("B currency = %v, want unknown", res.Records[1].Currency)
	}
}

func TestAssemble_ManufacturerDedup(t *testing.T) {
	store := newFakeManufacturers("Acme")
	m := mustMapping(t, map[int]mapping.ColumnOption{
		0: {Name: "name"},
		1: {Name: "manufacturer"},
	})
	res := assemble(t, m, testDealer, store, rowsOf(
		[]string{"A", "Bosch"},
		[]string{"B", "Bosch"},
		[]string{"C", "Acme"},
	))

	if store.upserts != 1 {
		t.Errorf("upserts = %d, want 1", store.upserts)
	}
	a, b, c := res.Records[0].ManufacturerID, res.Records[1].ManufacturerID, res.Records[2].ManufacturerID
	if a == nil || b == nil || *a != *b {
		t.Errorf("Bosch rows resolved to %v and %v, want the same id", a, b)
	}
	if c == nil || *c != 1 {
		t.Errorf("Acme resolved to %v, want 1", c)
	}
}

func TestAssemble_ManufacturerExactName(t *testing.T) {
	store := newFakeManufacturers("Acme")
	m := mustMapping(t, map[int]mapping.ColumnOption{
		0: {Name: "name"},
		1: {Name: "manufacturer"},
	})
	res := assemble(t, m, testDealer, store, rowsOf(
		[]string{"A", "Acme"},
		[]string{"B", " Acme "},
		[]string{"C", "ACME"},
	))

	plain, padded, upper := res.Records[0].ManufacturerID, res.Records[1].ManufacturerID, res.Records[2].ManufacturerID
	if plain == nil || *plain != 1 {
		t.Fatalf("Acme resolved to %v, want 1", plain)
	}
	if padded == nil || *padded == *plain {
		t.Errorf("\" Acme \" resolved to %v, want a new manufacturer", padded)
	}
	if upper == nil || *upper == *plain || *upper == *padded {
		t.Errorf("ACME resolved to %v, want a new manufacturer", upper)
	}
	if _, ok := store.byName[" Acme "]; !ok {
		t.Error("manufacturer \" Acme \" was not stored under its raw name")
	}
}

func TestAssemble_DefaultManufacturer(t *testing.T) {
	def := int64(9)
	dealer := testDealer
	dealer.DefaultManufacturerID = &def

	withColumn := mustMapping(t, map[int]mapping.ColumnOption{0: {Name: "name"}, 1: {Name: "manufacturer"}})
	res := assemble(t, withColumn, dealer, newFakeManufacturers(), rowsOf([]string{"A", ""}))
	if res.Records[0].ManufacturerID != nil {
		t.Errorf("empty manufacturer cell should clear the default, got %v", *res.Records[0].ManufacturerID)
	}

	nameOnly := mustMapping(t, map[int]mapping.ColumnOption{0: {Name: "name"}})
	res = assemble(t, nameOnly, dealer, newFakeManufacturers(), rowsOf([]string{"A"}))
	if id := res.Records[0].ManufacturerID; id == nil || *id != 9 {
		t.Errorf("ManufacturerID = %v, want dealer default 9", id)
	}
}

func TestAssemble_MissingNameDropped(t *testing.T) {
	m := mustMapping(t, map[int]mapping.ColumnOption{0: {Name: "name"}, 1: {Name: "price"}})
	res := assemble(t, m, testDealer, newFakeManufacturers(), rowsOf(
		[]string{"Kept", "1"},
		[]string{"   ", "2"},
	))
	if len(res.Records) != 1 || res.Records[0].Name != "Kept" {
		t.Errorf("Records = %+v, want only Kept", res.Records)
	}
	if res.MissingName != 1 {
		t.Errorf("MissingName = %d, want 1", res.MissingName)
	}

	noNameColumn := mustMapping(t, map[int]mapping.ColumnOption{0: {Name: "article"}})
	res = assemble(t, noNameColumn, testDealer, newFakeManufacturers(), rowsOf([]string{"X"}, []string{"Y"}))
	if len(res.Records) != 0 || res.MissingName != 2 {
		t.Errorf("without a name column: records = %d missing = %d, want 0 and 2", len(res.Records), res.MissingName)
	}
}

func TestAssemble_CoercionCounted(t *testing.T) {
	m := mustMapping(t, map[int]mapping.ColumnOption{0: {Name: "name"}, 1: {Name: "amount"}, 2: {Name: "price"}})
	res := assemble(t, m, testDealer, newFakeManufacturers(), rowsOf(
		[]string{"A", "many", "n/a"},
		[]string{"B", "", "12.9"},
	))

	if res.Coercions != 2 {
		t.Errorf("Coercions = %d, want 2", res.Coercions)
	}
	if got := *res.Records[0].Price; got != 0 {
		t.Errorf("coerced price = %d, want 0", got)
	}
	if got := *res.Records[1].Price; got != 12 {
		t.Errorf("price 12.9 = %d, want 12", got)
	}
	if len(res.Issues) != 2 || res.Issues[0].Field != "amount" || res.Issues[0].Value != "many" {
		t.Errorf("Issues = %+v", res.Issues)
	}
}

func TestAssemble_ResolverError(t *testing.T) {
	store := newFakeManufacturers()
	store.err = errors.New("db down")
	m := mustMapping(t, map[int]mapping.ColumnOption{0: {Name: "name"}, 1: {Name: "manufacturer"}})

	set, err := LoadManufacturerSet(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(m, testDealer, set, time.Now()).Assemble(context.Background(), rowsOf([]string{"A", "New Co"}))
	if err == nil {
		t.Fatal("Assemble() expected error when manufacturer upsert fails")
	}
}

func TestManufacturerSet_ConcurrentResolve(t *testing.T) {
	store := newFakeManufacturers()
	set, err := LoadManufacturerSet(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	ids := make([]int64, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := set.Resolve(context.Background(), "Omron")
			if err != nil {
				t.Error(err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("ids = %v, want all equal", ids)
		}
	}
	if len(set.Created()) != 1 {
		t.Errorf("Created() = %v, want exactly one", set.Created())
	}
}
