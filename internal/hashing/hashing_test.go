package hashing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBytesStable(t *testing.T) {
	a := Bytes([]byte("hello"))
	b := Bytes([]byte("hello"))
	if a != b {
		t.Errorf("same input produced different digests: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "xxh64:") {
		t.Errorf("digest missing algorithm prefix: %s", a)
	}
	if len(a) != len("xxh64:")+16 {
		t.Errorf("digest has unexpected length: %s", a)
	}
}

func TestFileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.md")
	content := []byte("# Title\n\nbody\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if fromFile != Bytes(content) {
		t.Errorf("File and Bytes disagree: %s vs %s", fromFile, Bytes(content))
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "nope.md")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFieldsSeparation(t *testing.T) {
	if Fields("ab", "c") == Fields("a", "bc") {
		t.Error("field boundaries must affect the digest")
	}
	if Fields("a", "b") != Fields("a", "b") {
		t.Error("identical fields must hash identically")
	}
}
