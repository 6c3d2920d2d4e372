package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/dealerprice/internal/core"
)

var _ core.Observer = (*Metrics)(nil)

func TestImportFinished(t *testing.T) {
	m := New()

	m.ImportFinished(&core.ImportResult{
		FormatName:  "csv",
		Status:      core.PhaseComplete,
		Kept:        8,
		FilteredOut: 2,
		Assembled:   7,
		MissingName: 1,
		Coercions:   3,
		Deleted:     5,
		Inserted:    7,
		Duration:    2 * time.Second,
	})
	m.ImportFinished(&core.ImportResult{Status: core.PhaseFailed})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"complete csv imports", testutil.ToFloat64(m.importsTotal.WithLabelValues("csv", "complete")), 1},
		{"failed unknown imports", testutil.ToFloat64(m.importsTotal.WithLabelValues("unknown", "failed")), 1},
		{"kept rows", testutil.ToFloat64(m.rowsTotal.WithLabelValues("kept")), 8},
		{"filtered rows", testutil.ToFloat64(m.rowsTotal.WithLabelValues("filtered")), 2},
		{"coercions", testutil.ToFloat64(m.issuesTotal.WithLabelValues("value_coercion")), 3},
		{"inserted", testutil.ToFloat64(m.productsTotal.WithLabelValues("inserted")), 7},
		{"deleted", testutil.ToFloat64(m.productsTotal.WithLabelValues("deleted")), 5},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestBatchInserted(t *testing.T) {
	m := New()
	m.BatchInserted(200, 10*time.Millisecond)
	m.BatchInserted(50, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.batchRecords); got != 250 {
		t.Errorf("batch records = %v, want 250", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.BatchInserted(1, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dealerprice_insert_batch_records_total 1") {
		t.Error("exposition should contain the batch counter")
	}
}
