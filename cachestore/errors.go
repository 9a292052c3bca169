// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package cachestore implements spec.md §4.3: a thin wrapper over the
// §4.2 on-disk layout (one directory per recipe, a meta.json evaluation
// record, and content-addressed ".bin" sidecar blobs), written
// atomically via temp-file-then-rename.
package cachestore

import "errors"

// Sentinel errors for the cachestore package.
var (
	// ErrInvalidRecipeName is returned when a recipe name can't be used
	// as a directory component (empty, or containing any character
	// other than an ASCII letter, digit, underscore, or hyphen).
	ErrInvalidRecipeName = errors.New("cachestore: invalid recipe name")

	// ErrBlobNotFound is returned by ReadBlob when no sidecar file
	// matches the requested hash.
	ErrBlobNotFound = errors.New("cachestore: referenced blob not found")
)
