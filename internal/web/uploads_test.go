package web

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/core"
)

func TestUploadStore_SaveAndPath(t *testing.T) {
	u := newUploadStore(t.TempDir())

	id, path, err := u.save(7, "Price List.XLSX", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("save() error = %v", err)
	}
	if !strings.HasSuffix(id, ".xlsx") {
		t.Errorf("id = %q, want .xlsx suffix", id)
	}

	got, err := u.path(7, id)
	if err != nil {
		t.Fatalf("path() error = %v", err)
	}
	if got != path {
		t.Errorf("path() = %q, want %q", got, path)
	}

	// Uploads are scoped to their dealer.
	if _, err := u.path(8, id); !errors.Is(err, core.ErrNoFile) {
		t.Errorf("path() for other dealer error = %v, want ErrNoFile", err)
	}
}

func TestUploadStore_PathRejectsTraversal(t *testing.T) {
	u := newUploadStore(t.TempDir())

	for _, id := range []string{"", "../secret.csv", "a/b.csv", ".hidden"} {
		if _, err := u.path(1, id); !errors.Is(err, core.ErrNoFile) {
			t.Errorf("path(%q) error = %v, want ErrNoFile", id, err)
		}
	}
}

func TestUploadStore_Sweep(t *testing.T) {
	u := newUploadStore(t.TempDir())

	_, oldPath, err := u.save(1, "old.csv", strings.NewReader("a"))
	if err != nil {
		t.Fatal(err)
	}
	_, newPath, err := u.save(2, "new.csv", strings.NewReader("b"))
	if err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := u.sweep(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expired upload still present: %v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("fresh upload removed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(oldPath)); err != nil {
		t.Errorf("dealer dir removed: %v", err)
	}
}

func TestUploadStore_SweepMissingDir(t *testing.T) {
	u := newUploadStore(filepath.Join(t.TempDir(), "missing"))

	removed, err := u.sweep(time.Now())
	if err != nil || removed != 0 {
		t.Errorf("sweep() = %d, %v; want 0, nil", removed, err)
	}
}
