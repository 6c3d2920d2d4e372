package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/logging"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
	"github.com/JonMunkholm/dealerprice/internal/web/templates"
)

// maxFormMemory is the multipart part kept in memory; the rest spills to disk.
const maxFormMemory = 32 << 20

// PreviewResponse is returned by the preview endpoint. UploadID refers to
// the stored file in a later import request.
type PreviewResponse struct {
	UploadID string `json:"upload_id"`
	FileName string `json:"file_name"`
	*core.PreviewResult
}

// StartImportRequest is the body of the start import endpoint.
type StartImportRequest struct {
	UploadID  string                       `json:"upload_id"`
	FileName  string                       `json:"file_name,omitempty"`
	Format    string                       `json:"format,omitempty"`
	Separator string                       `json:"separator,omitempty"`
	Codepage  string                       `json:"codepage,omitempty"`
	Mapping   map[int]mapping.ColumnOption `json:"mapping"`
}

// ProgressResponse adds the computed percentage to an import's progress.
type ProgressResponse struct {
	core.ImportProgress
	Percent int `json:"percent"`
}

// RunResponse is one entry of a dealer's import history.
type RunResponse struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	Format      string    `json:"format"`
	Status      string    `json:"status"`
	TotalRows   int       `json:"total_rows"`
	Kept        int       `json:"kept"`
	Assembled   int       `json:"assembled"`
	Deleted     int64     `json:"deleted"`
	Inserted    int64     `json:"inserted"`
	MissingName int       `json:"missing_name"`
	Coercions   int       `json:"coercions"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
}

func toRunResponse(run catalog.ImportRun) RunResponse {
	return RunResponse{
		ID:          run.ID,
		FileName:    run.FileName,
		Format:      run.FileType.String(),
		Status:      run.Status,
		TotalRows:   run.TotalRows,
		Kept:        run.Kept,
		Assembled:   run.Assembled,
		Deleted:     run.Deleted,
		Inserted:    run.Inserted,
		MissingName: run.MissingName,
		Coercions:   run.Coercions,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		DurationMs:  run.Duration.Milliseconds(),
	}
}

// dealerIDParam parses the dealer id path parameter. A malformed id names
// no dealer.
func dealerIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "dealerID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("dealer %q: %w", raw, catalog.ErrDealerNotFound)
	}
	return id, nil
}

// parseIntParam parses an integer query parameter, returning defaultVal if
// missing or invalid.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

// handleListFields returns the mappable product fields.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mapping.Fields())
}

// handlePreview stores an uploaded price list and returns its decoded
// header and sample rows for the mapping step.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	dealerID, err := dealerIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit %d bytes", core.ErrFileTooLarge, tooLarge.Limit))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: invalid form: %v", core.ErrNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	uploadID, path, err := s.uploads.save(dealerID, header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	preview, err := s.service.Preview(r.Context(), core.PreviewRequest{
		DealerID:  dealerID,
		Path:      path,
		Format:    r.FormValue("format"),
		Separator: r.FormValue("separator"),
		Codepage:  r.FormValue("codepage"),
	})
	if err != nil {
		s.uploads.remove(path)
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("price list uploaded",
		"dealer_id", dealerID,
		"upload_id", uploadID,
		"file", header.Filename,
		"size", header.Size,
		"rows", preview.TotalRows,
	)

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.PreviewTable(templates.PreviewParams{
			UploadID: uploadID,
			FileName: header.Filename,
			Preview:  preview,
		}).Render(r.Context(), w)
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		UploadID:      uploadID,
		FileName:      header.Filename,
		PreviewResult: preview,
	})
}

// handleStartImport starts an asynchronous import of a previously
// uploaded file.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	dealerID, err := dealerIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var body StartImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: decode request: %v", mapping.ErrInvalidRule, err))
		return
	}

	path, err := s.uploads.path(dealerID, body.UploadID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var m *mapping.ColumnMapping
	if len(body.Mapping) > 0 {
		if m, err = mapping.Parse(body.Mapping); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	importID, err := s.service.StartImport(r.Context(), core.ImportRequest{
		DealerID:  dealerID,
		Path:      path,
		FileName:  body.FileName,
		Format:    body.Format,
		Separator: body.Separator,
		Codepage:  body.Codepage,
		Mapping:   m,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusAccepted)
		templates.ImportStarted(importID).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"import_id": importID})
}

// handleActiveImport returns the dealer's running import, if any.
func (s *Server) handleActiveImport(w http.ResponseWriter, r *http.Request) {
	dealerID, err := dealerIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	importID, ok := s.service.ActiveImport(dealerID)
	if !ok {
		s.respondError(w, r, fmt.Errorf("dealer %d: %w", dealerID, core.ErrImportNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"import_id": importID})
}

// handleListRuns returns the dealer's import history, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	dealerID, err := dealerIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := []RunResponse{}
	if s.opts.History != nil {
		limit := min(parseIntParam(r, "limit", 20), 100)
		runs, err := s.opts.History.ListImportRuns(r.Context(), dealerID, limit)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		for _, run := range runs {
			out = append(out, toRunResponse(run))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleImportStatus returns the current progress without blocking.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.GetImportProgress(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressResponse{ImportProgress: progress, Percent: progress.Percent()})
}

// handleImportProgress streams import progress via Server-Sent Events.
// Supports resumption via lastEventId query parameter for reconnection.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	lastEventID, _ := strconv.Atoi(lastEventIDStr)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"))
		return
	}

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - import finished
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if lastEventIDStr != "" && percent <= lastEventID && !progress.Phase.Done() {
				continue
			}

			data, _ := json.Marshal(ProgressResponse{ImportProgress: progress, Percent: percent})
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final result, waiting for a running
// import to finish.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.GetImportResult(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelImport cancels a running import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(chi.URLParam(r, "importID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Error   string                   `json:"error,omitempty"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

// handleHealth reports storage reachability and import capacity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Imports: s.service.Limiter().Status()}
	status := http.StatusOK

	if s.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ping(ctx); err != nil {
			resp.Status, resp.Error = "unavailable", err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
