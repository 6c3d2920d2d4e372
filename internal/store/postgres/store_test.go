package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
)

func TestProductRow(t *testing.T) {
	price := int64(500)
	mfr := int64(3)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		record       catalog.ProductRecord
		wantCurrency bool
		wantPrices   string
	}{
		{
			name: "full record",
			record: catalog.ProductRecord{
				DealerID:       1,
				ManufacturerID: &mfr,
				Currency:       catalog.CurrencyUSD,
				Amount:         10,
				Price:          &price,
				Prices:         []catalog.PriceTier{{Tier: 1, Price: 999, Amount: 5, Currency: catalog.CurrencyEUR}},
				Name:           "Widget",
				Attributes:     map[string]string{"article": "W-1"},
				CreatedAt:      now,
				UpdatedAt:      now,
			},
			wantCurrency: true,
			wantPrices:   `[{"tier":1,"price":999,"amount":5,"currency":"EUR"}]`,
		},
		{
			name:         "unknown currency and no tiers",
			record:       catalog.ProductRecord{DealerID: 1, Currency: catalog.CurrencyUnknown, Name: "Bolt"},
			wantCurrency: false,
			wantPrices:   `[]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := productRow(&tt.record)
			if err != nil {
				t.Fatalf("productRow() error = %v", err)
			}
			if len(row) != len(productColumns) {
				t.Fatalf("row has %d values for %d columns", len(row), len(productColumns))
			}

			currency, _ := row[2].(*int16)
			if (currency != nil) != tt.wantCurrency {
				t.Errorf("currency = %v, want set = %v", currency, tt.wantCurrency)
			}

			var prices []catalog.PriceTier
			if err := json.Unmarshal(row[5].([]byte), &prices); err != nil {
				t.Fatalf("prices json: %v", err)
			}
			if string(row[5].([]byte)) != tt.wantPrices {
				t.Errorf("prices = %s, want %s", row[5], tt.wantPrices)
			}

			// First attribute column is article.
			article := row[7]
			if v, ok := tt.record.Attributes["article"]; ok {
				if article != v {
					t.Errorf("article = %v, want %q", article, v)
				}
			} else if article != nil {
				t.Errorf("article = %v, want NULL", article)
			}
		})
	}
}
