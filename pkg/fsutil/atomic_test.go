package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	if err := WriteFileAtomic(path, []byte("one"), 0644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("Expected replaced content, got %q", data)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.conf")
	dst := filepath.Join(dir, "dst.conf")
	if err := os.WriteFile(src, []byte("MaxRequestWorkers 40\n"), 0640); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "MaxRequestWorkers 40\n" {
		t.Errorf("Unexpected copy content %q", data)
	}
	if !Exists(dst) || Exists(filepath.Join(dir, "nope")) {
		t.Error("Exists() returned unexpected result")
	}

	if err := CopyFile(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("Expected error copying a missing file")
	}
}
