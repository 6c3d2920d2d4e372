package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const widgetCSV = "name;amount;price\nWidget;10;500\nGadget;0;0\n"

const widgetMapping = `columns:
  0: {name: name}
  1: {name: amount}
  2:
    name: price
    filter_option: [ignore_if_equal]
    filter_value: ["0"]
`

func cleanEnv(t *testing.T) {
	for _, fe := range flagEnv {
		t.Setenv(fe.env, "")
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLI_ImportFlow(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "prices.db")
	csv := writeFile(t, dir, "prices.csv", widgetCSV)
	mappingFile := writeFile(t, dir, "acme.yaml", widgetMapping)

	out, err := runCLI(t, "dealer", "create", "--name", "Acme", "--sqlite", db)
	if err != nil {
		t.Fatalf("dealer create error = %v", err)
	}
	if !strings.Contains(out, "created dealer 1") {
		t.Fatalf("dealer create output = %q", out)
	}

	out, err = runCLI(t, "preview", "--dealer", "1", "--file", csv, "--sqlite", db)
	if err != nil {
		t.Fatalf("preview error = %v", err)
	}
	if !strings.Contains(out, "rows: 2") || !strings.Contains(out, "Widget") {
		t.Errorf("preview output = %q", out)
	}

	out, err = runCLI(t, "run", "--dealer", "1", "--file", csv, "--mapping", mappingFile, "--sqlite", db)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, ": complete") || !strings.Contains(out, "0 deleted, 1 inserted") {
		t.Errorf("run output = %q", out)
	}

	// The second run reuses the mapping saved by the first.
	out, err = runCLI(t, "run", "--dealer", "1", "--file", csv, "--sqlite", db)
	if err != nil {
		t.Fatalf("second run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 deleted, 1 inserted") {
		t.Errorf("second run output = %q", out)
	}

	out, err = runCLI(t, "runs", "--dealer", "1", "--sqlite", db)
	if err != nil {
		t.Fatalf("runs error = %v", err)
	}
	if got := strings.Count(out, "complete"); got != 2 {
		t.Errorf("runs lists %d complete imports, want 2:\n%s", got, out)
	}

	out, err = runCLI(t, "dealer", "show", "--dealer", "1", "--sqlite", db)
	if err != nil {
		t.Fatalf("dealer show error = %v", err)
	}
	if !strings.Contains(out, "prices.csv") || !strings.Contains(out, "saved mapping  true") {
		t.Errorf("dealer show output = %q", out)
	}
}

func TestCLI_Errors(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "prices.db")
	csv := writeFile(t, dir, "prices.csv", widgetCSV)

	if _, err := runCLI(t, "dealer", "create", "--name", "Acme", "--sqlite", db); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown dealer", []string{"preview", "--dealer", "7", "--file", csv}, "DLR001"},
		{"no saved mapping", []string{"run", "--dealer", "1", "--file", csv}, "MAP003"},
		{"unsupported format", []string{"preview", "--dealer", "1", "--file", writeFile(t, dir, "x.pdf", "%PDF")}, "FILE001"},
		{"bad currency", []string{"dealer", "create", "--name", "B", "--currency", "XYZ"}, "unknown currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append(tt.args, "--sqlite", db)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
