package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMoveReplacesDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")

	os.MkdirAll(filepath.Join(src, "sub"), 0o755)
	os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("new"), 0o600)
	os.MkdirAll(dst, 0o755)
	os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("old"), 0o644)

	if err := Move(src, dst); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if Exists(src) {
		t.Fatal("source still present")
	}
	if Exists(filepath.Join(dst, "stale.txt")) {
		t.Fatal("destination not replaced")
	}
	data, err := os.ReadFile(filepath.Join(dst, "sub", "a.txt"))
	if err != nil || string(data) != "new" {
		t.Fatalf("moved content = %q, %v", data, err)
	}
}

func TestCopyTreeKeepsModes(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	os.MkdirAll(filepath.Join(src, "bin"), 0o755)
	os.WriteFile(filepath.Join(src, "bin", "run"), []byte("#!/bin/sh"), 0o755)

	dst := filepath.Join(root, "copy")
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree: %v", err)
	}
	info, err := os.Stat(filepath.Join(dst, "bin", "run"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("mode = %v", info.Mode())
	}
	if !Exists(filepath.Join(src, "bin", "run")) {
		t.Fatal("CopyTree removed the source")
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	if err := WriteFile(path, strings.NewReader("hi"), 0); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "hi" {
		t.Fatalf("content = %q", data)
	}
}
