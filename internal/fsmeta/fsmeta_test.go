package fsmeta

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestStatOverridesModeAndSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sock")
	if err := os.WriteFile(path, []byte("not actually empty"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	info, err := Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", info.Size())
	}
	if info.Mode()&fs.ModeSocket == 0 {
		t.Fatalf("Mode() = %v, want ModeSocket set", info.Mode())
	}
}

func TestChmodPropagatesWriteToReadBits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sock")
	if err := os.WriteFile(path, nil, 0o000); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Chmod(path, 0o200); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode().Perm()&0o400 == 0 {
		t.Fatalf("Mode() = %v, want owner-read bit set alongside owner-write", fi.Mode().Perm())
	}
}

func TestLinkCreatesSecondDirectoryEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sock")
	newPath := filepath.Join(dir, "sock-link")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Link(path, newPath); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("Stat(newPath): %v", err)
	}
}
