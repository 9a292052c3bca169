// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MathiasStokholm/alkymi/value"
)

func TestPath_MissingFileIsStableAndDistinct(t *testing.T) {
	h := New(Options{})
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist.txt")

	a, err := h.Value(value.Path(missing))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	b, err := h.Value(value.Path(missing))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if a != b {
		t.Errorf("missing path checksum not stable: %s != %s", a, b)
	}
}

func TestPath_ContentChangeAlterDigest(t *testing.T) {
	h := New(Options{})
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")

	if err := os.WriteFile(p, []byte("v1"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	before, err := h.Value(value.Path(p))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	if err := os.WriteFile(p, []byte("v2"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	after, err := h.Value(value.Path(p))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	if before == after {
		t.Error("changing file contents should change its checksum")
	}
}

func TestPath_SameContentDifferentBasenamesDiffer(t *testing.T) {
	h := New(Options{})
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.txt")
	p2 := filepath.Join(dir, "b.txt")

	if err := os.WriteFile(p1, []byte("same"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(p2, []byte("same"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sum1, err := h.Value(value.Path(p1))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	sum2, err := h.Value(value.Path(p2))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if sum1 == sum2 {
		t.Error("digests over distinct basenames should include the basename, not just contents")
	}
}

func TestPath_SameBasenameAndContentAcrossDirsSameDigest(t *testing.T) {
	h := New(Options{})
	dirA := t.TempDir()
	dirB := t.TempDir()
	pA := filepath.Join(dirA, "shared.txt")
	pB := filepath.Join(dirB, "shared.txt")

	if err := os.WriteFile(pA, []byte("same"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(pB, []byte("same"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sumA, err := h.Value(value.Path(pA))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	sumB, err := h.Value(value.Path(pB))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if sumA != sumB {
		t.Error("same basename and contents in different directories should hash the same (basename-only, not full path)")
	}
}

func TestPath_DirectoryDigestIgnoresModTime(t *testing.T) {
	h := New(Options{})
	dir := t.TempDir()

	before, err := h.Value(value.Path(dir))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	after, err := h.Value(value.Path(dir))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if before != after {
		t.Error("a directory's digest must depend only on its path string, not its modification time")
	}
}

func TestPath_MtimeMode(t *testing.T) {
	h := New(Options{FileChecksumMethod: FileChecksumMtime})
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sum, err := h.Value(value.Path(p))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if sum == "" {
		t.Error("expected non-empty digest for mtime-mode path checksum")
	}
}

func TestPath_Directory(t *testing.T) {
	h := New(Options{})
	dir := t.TempDir()

	sum, err := h.Value(value.Path(dir))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if sum == "" {
		t.Error("expected non-empty digest for directory path")
	}
}
