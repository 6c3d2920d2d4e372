package web

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dealerprice/internal/core"
)

// uploadStore keeps uploaded price lists between preview and import, one
// directory per dealer.
type uploadStore struct {
	dir string
}

func newUploadStore(dir string) *uploadStore {
	return &uploadStore{dir: dir}
}

// save writes r to a new file and returns its upload id. The id keeps the
// original extension so the decoder can be picked from it.
func (u *uploadStore) save(dealerID int64, fileName string, r io.Reader) (string, string, error) {
	dir := u.dealerDir(dealerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create upload dir: %w", err)
	}

	id := uuid.New().String() + strings.ToLower(filepath.Ext(fileName))
	path := filepath.Join(dir, id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	return id, path, nil
}

// path resolves an upload id of a dealer to its file.
func (u *uploadStore) path(dealerID int64, id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("upload %q: %w", id, core.ErrNoFile)
	}
	path := filepath.Join(u.dealerDir(dealerID), id)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("upload %q: %w", id, core.ErrNoFile)
	}
	return path, nil
}

func (u *uploadStore) dealerDir(dealerID int64) string {
	return filepath.Join(u.dir, strconv.FormatInt(dealerID, 10))
}

// remove deletes a stored upload that turned out to be unusable.
func (u *uploadStore) remove(path string) {
	os.Remove(path)
}

// sweep removes uploads last modified before cutoff and returns how many
// were removed. Dealer directories are kept.
func (u *uploadStore) sweep(cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(u.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// runSweeper removes expired uploads immediately and then every interval
// until ctx is cancelled.
func (u *uploadStore) runSweeper(ctx context.Context, retention, interval time.Duration) {
	slog.Info("upload sweeper started",
		"dir", u.dir,
		"retention", retention.String(),
		"interval", interval.String(),
	)

	u.sweepOnce(retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("upload sweeper stopped")
			return
		case <-ticker.C:
			u.sweepOnce(retention)
		}
	}
}

func (u *uploadStore) sweepOnce(retention time.Duration) {
	start := time.Now()
	removed, err := u.sweep(start.Add(-retention))
	if err != nil {
		slog.Error("upload sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("removed expired uploads",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
