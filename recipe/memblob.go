// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/MathiasStokholm/alkymi/serialize"
)

// memBlobStore is an in-process, content-addressed blob store used as
// the serialize.BlobSink/BlobSource for transient recipes and recipes
// built with NoCache: they still need a Handle over their outputs (so
// downstream status checks and ingredient materialization work exactly
// like a persisted recipe's), just without ever touching disk.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

var (
	_ serialize.BlobSink   = (*memBlobStore)(nil)
	_ serialize.BlobSource = (*memBlobStore)(nil)
)

func (m *memBlobStore) WriteBlob(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	m.mu.Lock()
	m.blobs[hash] = append([]byte(nil), data...)
	m.mu.Unlock()
	return hash, nil
}

func (m *memBlobStore) ReadBlob(hash string) ([]byte, error) {
	m.mu.Lock()
	data, ok := m.blobs[hash]
	m.mu.Unlock()
	if !ok {
		return nil, serialize.ErrBlobNotFound
	}
	return data, nil
}
