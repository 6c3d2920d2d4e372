package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/decode"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

// PreviewRequest names a decoded-but-not-imported file.
type PreviewRequest struct {
	DealerID  int64
	Path      string
	Format    string
	Separator string
	Codepage  string
}

// PreviewResult is what the mapping step needs: the header, a sample of
// rows, the mappable fields and the dealer's last committed mapping.
type PreviewResult struct {
	DealerID  int64                        `json:"dealer_id"`
	Format    string                       `json:"format"`
	Separator string                       `json:"separator,omitempty"`
	Header    []string                     `json:"header"`
	Rows      [][]string                   `json:"rows"`
	TotalRows int                          `json:"total_rows"`
	Fields    []mapping.FieldInfo          `json:"fields"`
	Mapping   map[int]mapping.ColumnOption `json:"mapping,omitempty"`

	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// Preview decodes a file for the mapping step. It performs no writes.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	start := time.Now()

	ft, err := decode.ResolveFormat(req.Path, req.Format)
	if err != nil {
		return nil, err
	}

	dealer, err := s.store.GetDealer(ctx, req.DealerID)
	if err != nil {
		return nil, err
	}

	opts := s.decodeOptions(ft, dealer, req.Separator, req.Codepage)
	table, err := decode.Decode(ctx, req.Path, ft.String(), opts)
	if err != nil {
		return nil, err
	}

	n := min(s.previewRows, len(table.Rows))
	res := &PreviewResult{
		DealerID:  dealer.ID,
		Format:    ft.String(),
		Header:    table.Header,
		Rows:      table.Rows[:n],
		TotalRows: len(table.Rows),
		Fields:    mapping.Fields(),
	}
	if ft == catalog.FileTypeCSV {
		res.Separator = opts.Separator
	}

	// A stale or unreadable saved mapping only means no pre-filled form.
	if len(dealer.Mapping) > 0 {
		if m, err := mapping.ParseJSON(dealer.Mapping); err == nil {
			res.Mapping = m.Options()
		}
	}

	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	return res, nil
}
