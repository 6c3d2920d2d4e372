package decode

import (
	"context"
	"reflect"
	"testing"
)

func TestDecodeXLSX_CellTypes(t *testing.T) {
	path := buildXLSX(t, [][]any{
		{"article", "name", "price", "weight"},
		{"00123", "Кабель ВВГ", float64(500), 12.3},
		{"A-7", "", float64(0.1) + float64(0.2), float64(1)},
	})

	table, err := Decode(context.Background(), path, "", Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := [][]string{
		{"00123", "Кабель ВВГ", "500", "12.3"},
		{"A-7", "", "0.3", "1"},
	}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("Rows = %q, want %q", table.Rows, want)
	}
}

func TestDecodeXLSX_BlankHeaderCellsKeepData(t *testing.T) {
	path := buildXLSX(t, [][]any{
		{"name"},
		{"Bolt", "extra"},
	})

	table, err := Decode(context.Background(), path, "", Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if table.Width() != 2 {
		t.Fatalf("Width() = %d, want 2", table.Width())
	}
	if table.Rows[0][1] != "extra" {
		t.Errorf("Rows[0][1] = %q, want %q", table.Rows[0][1], "extra")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{500, "500"},
		{12.300000000000001, "12.3"},
		{0.1 + 0.2, "0.3"},
		{-4.5, "-4.5"},
		{1e21, "1000000000000000000000"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
