package decode

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "hello;world"...), "hello;world"},
		{"without BOM", []byte("hello;world"), "hello;world"},
		{"empty", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM", []byte{0xEF, 0xBB, 'a'}, string([]byte{0xEF, 0xBB, 'a'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(SkipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"ascii", []byte("plain text"), "plain text"},
		{"valid multibyte", []byte("Цена €"), "Цена €"},
		{"invalid byte", []byte{'a', 0xFF, 'b'}, "a?b"},
		{"truncated sequence at EOF", []byte{'a', 0xD0}, "a?"},
		{"replacement char kept", []byte("x�y"), "x�y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer_SplitReads(t *testing.T) {
	input := strings.Repeat("Ёж ", 500)
	got, err := io.ReadAll(NewUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(input))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != input {
		t.Error("multi-byte runes split across reads were not preserved")
	}
}

func TestCountingReader(t *testing.T) {
	var calls int
	cr := NewCountingReader(strings.NewReader("abcdef"), 6, func(read, total int64) { calls++ })
	if _, err := io.ReadAll(cr); err != nil {
		t.Fatal(err)
	}
	if cr.BytesRead() != 6 {
		t.Errorf("BytesRead() = %d, want 6", cr.BytesRead())
	}
	if calls == 0 {
		t.Error("progress callback never invoked")
	}
}
