package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenTraceWriter(t *testing.T) {
	var stderr bytes.Buffer

	w, closeFn, err := openTraceWriter("", &stderr)
	if err != nil || w != nil {
		t.Errorf("openTraceWriter(\"\") = %v, %v, want nil writer", w, err)
	}
	_ = closeFn()

	w, closeFn, err = openTraceWriter("-", &stderr)
	if err != nil || w != &stderr {
		t.Errorf("openTraceWriter(\"-\") = %v, %v, want stderr", w, err)
	}
	_ = closeFn()

	path := filepath.Join(t.TempDir(), "spans.json")
	w, closeFn, err = openTraceWriter(path, &stderr)
	if err != nil {
		t.Fatalf("openTraceWriter(file) error = %v", err)
	}
	if _, err := w.Write([]byte("{}\n")); err != nil {
		t.Fatal(err)
	}
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "{}\n" {
		t.Errorf("trace file = %q, %v", data, err)
	}

	if _, _, err := openTraceWriter(filepath.Join(t.TempDir(), "missing", "spans.json"), &stderr); err == nil {
		t.Error("openTraceWriter(missing dir) should fail")
	}
}
