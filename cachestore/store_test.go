// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package cachestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MathiasStokholm/alkymi/serialize"
	"github.com/MathiasStokholm/alkymi/value"
)

func TestPathFor_RejectsInvalidNames(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.PathFor("../escape"); err != ErrInvalidRecipeName {
		t.Errorf("err = %v, want ErrInvalidRecipeName", err)
	}
	if _, err := s.PathFor("ok_name-1"); err != nil {
		t.Errorf("unexpected error for valid name: %v", err)
	}
}

func TestLoadRecord_MissingIsNotError(t *testing.T) {
	s := New(t.TempDir())
	dir, err := s.Dir("never_evaluated")
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	rec, ok, err := dir.LoadRecord()
	if err != nil {
		t.Fatalf("LoadRecord() error = %v, want nil", err)
	}
	if ok || rec != nil {
		t.Errorf("LoadRecord() = (%v, %v), want (nil, false)", rec, ok)
	}
}

func TestLoadRecord_CorruptFileIsNotEvaluated(t *testing.T) {
	s := New(t.TempDir())
	dir, err := s.Dir("broken")
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if err := os.MkdirAll(dir.Path(), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir.Path(), metaFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rec, ok, err := dir.LoadRecord()
	if err != nil || ok || rec != nil {
		t.Errorf("LoadRecord() = (%v, %v, %v), want (nil, false, nil)", rec, ok, err)
	}
}

func TestStoreAndLoadRecord_RoundTrip(t *testing.T) {
	s := New(t.TempDir())
	dir, err := s.Dir("my_recipe")
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}

	outDoc, err := serialize.Encode(value.Seq(value.Int(1), value.Bytes([]byte("blob-data"))), dir, false)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	rec := &Record{
		IngredientChecksums: []string{"abc123"},
		FuncChecksum:        "def456",
		OutputChecksums:     []string{"out1"},
		Output:              outDoc,
	}
	if err := dir.StoreRecord(rec); err != nil {
		t.Fatalf("StoreRecord() error = %v", err)
	}

	loaded, ok, err := dir.LoadRecord()
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if !ok {
		t.Fatal("LoadRecord() ok = false, want true")
	}
	if loaded.FuncChecksum != "def456" {
		t.Errorf("FuncChecksum = %q, want %q", loaded.FuncChecksum, "def456")
	}

	handle := dir.LoadOutputHandles(loaded)
	elems, err := handle.AsSeq()
	if err != nil {
		t.Fatalf("AsSeq() error = %v", err)
	}
	if len(elems) != 2 {
		t.Fatalf("len(elems) = %d, want 2", len(elems))
	}
	i, err := elems[0].AsInt()
	if err != nil || i != 1 {
		t.Errorf("elems[0].AsInt() = (%d, %v), want (1, nil)", i, err)
	}
	b, err := elems[1].AsBytes()
	if err != nil || string(b) != "blob-data" {
		t.Errorf("elems[1].AsBytes() = (%q, %v), want (\"blob-data\", nil)", b, err)
	}
}

func TestWriteBlob_ContentAddressedDeduplicates(t *testing.T) {
	s := New(t.TempDir())
	dir, err := s.Dir("dedup_recipe")
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}

	h1, err := dir.WriteBlob([]byte("same bytes"))
	if err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	h2, err := dir.WriteBlob([]byte("same bytes"))
	if err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash mismatch for identical content: %s != %s", h1, h2)
	}

	entries, err := os.ReadDir(dir.Path())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	blobCount := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".bin" {
			blobCount++
		}
	}
	if blobCount != 1 {
		t.Errorf("expected exactly one sidecar blob, got %d", blobCount)
	}
}

func TestReadBlob_MissingReturnsErrBlobNotFound(t *testing.T) {
	s := New(t.TempDir())
	dir, err := s.Dir("no_blobs")
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	_, err = dir.ReadBlob("0000000000000000000000000000000000000000000000000000000000000000")
	if err != ErrBlobNotFound {
		t.Errorf("err = %v, want ErrBlobNotFound", err)
	}
}
