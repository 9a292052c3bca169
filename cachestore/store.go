// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package cachestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/MathiasStokholm/alkymi/serialize"
)

// validRecipeName mirrors the teacher's DAG-name validation pattern:
// alphanumeric, underscore, and hyphen only, so a recipe name is always
// safe to use as a single directory component.
var validRecipeName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const metaFileName = "meta.json"

// Store is the cache root described in spec.md §4.3: a directory
// containing one subdirectory per recipe. The root is intended to be
// process-global per spec.md ("the root is process-global"); package
// config holds the process-wide default Config, and a Session
// constructs its Store from that Config's CachePath.
type Store struct {
	root string
}

// New creates a Store rooted at root. The directory is not created
// until the first recipe is stored.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

// PathFor returns the directory a recipe's cache entry lives in.
func (s *Store) PathFor(recipeName string) (string, error) {
	if !validRecipeName.MatchString(recipeName) {
		return "", ErrInvalidRecipeName
	}
	return filepath.Join(s.root, recipeName), nil
}

// Dir returns a RecipeDir scoped to recipeName's cache directory. The
// directory is not created until a blob or record is actually written.
func (s *Store) Dir(recipeName string) (*RecipeDir, error) {
	path, err := s.PathFor(recipeName)
	if err != nil {
		return nil, err
	}
	return &RecipeDir{path: path}, nil
}

// RecipeDir is the per-recipe directory: meta.json plus content-
// addressed "<hash>.bin" sidecar blobs. It implements
// serialize.BlobSink and serialize.BlobSource so a recipe's output
// document can be encoded and decoded directly against its own cache
// directory.
type RecipeDir struct {
	path string
}

var _ serialize.BlobSink = (*RecipeDir)(nil)
var _ serialize.BlobSource = (*RecipeDir)(nil)

// Path returns the recipe's cache directory.
func (d *RecipeDir) Path() string { return d.path }

// WriteBlob hashes data with SHA-256, writes it to "<hash>.bin" if not
// already present, and returns the hex hash. Blob storage keys are
// independent of the checksum package's configured Method: they exist
// purely to content-address sidecar files, not to detect dirtiness.
func (d *RecipeDir) WriteBlob(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return "", err
	}
	blobPath := filepath.Join(d.path, hash+".bin")

	// Content-addressed: if a blob with this hash already exists, its
	// bytes are guaranteed identical, so skip the write entirely.
	if existing, err := os.ReadFile(blobPath); err == nil && bytes.Equal(existing, data) {
		return hash, nil
	}

	tmp, err := os.CreateTemp(d.path, ".blob-*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, blobPath); err != nil {
		return "", err
	}
	success = true
	return hash, nil
}

// ReadBlob reads a previously written sidecar blob by its hash.
func (d *RecipeDir) ReadBlob(hash string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.path, hash+".bin"))
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (d *RecipeDir) metaPath() string { return filepath.Join(d.path, metaFileName) }

// LoadRecord reads this recipe's meta.json. A missing or corrupt file
// is not an error: it yields ok=false ("not evaluated") rather than
// propagating the decode failure, so a poisoned cache entry never
// blocks progress.
func (d *RecipeDir) LoadRecord() (*Record, bool, error) {
	data, err := os.ReadFile(d.metaPath())
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		slog.Warn("cachestore: discarding unreadable meta.json",
			slog.String("path", d.metaPath()),
			slog.Any("error", err))
		return nil, false, nil
	}
	return &rec, true, nil
}

// LoadOutputHandles returns a lazy Handle over the recipe's recorded
// output document, backed by this directory as the BlobSource. Callers
// typically follow with Handle.AsSeq to get one Handle per output.
func (d *RecipeDir) LoadOutputHandles(rec *Record) serialize.Handle {
	return serialize.Decode(rec.Output, d)
}

// StoreRecord atomically rewrites meta.json. Callers must have already
// flushed every blob the record's output document references (via
// WriteBlob) before calling this, matching spec.md §4.3's "writes blobs
// then atomically rewrites meta.json" ordering.
func (d *RecipeDir) StoreRecord(rec *Record) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.path, ".meta-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, d.metaPath()); err != nil {
		return err
	}
	success = true
	return nil
}
