// Package templates renders the HTML fragments served to the dealer
// mapping page.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

// PreviewParams is the data behind the preview table.
type PreviewParams struct {
	UploadID string
	FileName string
	Preview  *core.PreviewResult
}

// PreviewTable renders the decoded header and sample rows with one field
// selector per column, prefilled from the dealer's saved mapping.
func PreviewTable(p PreviewParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		ew.printf(`<div class="preview" data-upload-id="%s">`, esc(p.UploadID))
		ew.printf(`<p class="preview-summary">%s: %d rows (%s)</p>`,
			esc(p.FileName), p.Preview.TotalRows, esc(p.Preview.Format))

		ew.print(`<table class="preview-table"><thead><tr>`)
		for col, label := range p.Preview.Header {
			ew.printf(`<th>%s`, esc(label))
			fieldSelect(ew, col, p.Preview.Fields, p.Preview.Mapping[col].Name)
			ew.print(`</th>`)
		}
		ew.print(`</tr></thead><tbody>`)
		for _, row := range p.Preview.Rows {
			ew.print(`<tr>`)
			for _, cell := range row {
				ew.printf(`<td>%s</td>`, esc(cell))
			}
			ew.print(`</tr>`)
		}
		ew.print(`</tbody></table></div>`)
		return ew.err
	})
}

func fieldSelect(ew *errWriter, col int, fields []mapping.FieldInfo, selected string) {
	ew.printf(`<select name="mapping[%d][name]">`, col)
	ew.print(`<option value="">-</option>`)
	for _, f := range fields {
		attr := ""
		if f.Name == selected {
			attr = " selected"
		}
		ew.printf(`<option value="%s"%s>%s</option>`, esc(f.Name), attr, esc(f.Label))
	}
	ew.print(`</select>`)
}

// ErrorAlert renders a user-facing error.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		ew.printf(`<div class="alert alert-error" role="alert" data-code="%s">`, esc(code))
		ew.printf(`<p>%s</p>`, esc(message))
		if action != "" {
			ew.printf(`<p class="alert-action">%s</p>`, esc(action))
		}
		ew.print(`</div>`)
		return ew.err
	})
}

// ImportStarted renders the progress placeholder for a started import.
func ImportStarted(importID string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		id := esc(importID)
		_, err := fmt.Fprintf(w,
			`<div class="import-progress" id="import-%s" data-import-id="%s" data-progress-url="/api/imports/%s/progress">`+
				`<progress max="100" value="0"></progress></div>`,
			id, id, id)
		return err
	})
}

func esc(s string) string { return templ.EscapeString(s) }

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) print(s string) {
	if e.err == nil {
		_, e.err = io.WriteString(e.w, s)
	}
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err == nil {
		_, e.err = fmt.Fprintf(e.w, format, args...)
	}
}
