package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

func TestPreviewTable(t *testing.T) {
	preview := &core.PreviewResult{
		Format:    "csv",
		Header:    []string{"Name", "Price"},
		Rows:      [][]string{{"<b>Widget</b>", "500"}},
		TotalRows: 1,
		Fields:    []mapping.FieldInfo{{Name: "name", Label: "Name"}, {Name: "price", Label: "Unit price"}},
		Mapping:   map[int]mapping.ColumnOption{1: {Name: "price"}},
	}

	var buf bytes.Buffer
	err := PreviewTable(PreviewParams{UploadID: "abc.csv", FileName: "prices.csv", Preview: preview}).
		Render(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		`data-upload-id="abc.csv"`,
		`&lt;b&gt;Widget&lt;/b&gt;`,
		`<select name="mapping[1][name]">`,
		`<option value="price" selected>Unit price</option>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered html missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "<b>Widget</b>") {
		t.Error("cell values must be escaped")
	}
}

func TestErrorAlert(t *testing.T) {
	var buf bytes.Buffer
	if err := ErrorAlert("Bad file", "Try again", "FILE002").Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, `data-code="FILE002"`) || !strings.Contains(html, "Try again") {
		t.Errorf("unexpected html: %s", html)
	}
}
