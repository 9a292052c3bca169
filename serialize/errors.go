// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package serialize implements spec.md §4.2: persisting a value tree as
// a JSON output document with blob-token indirection for anything that
// isn't a JSON-native primitive, and reading it back as lazy Handles so
// status checks never have to deserialize a heavy payload.
package serialize

import "errors"

// Sentinel errors for the serialize package.
var (
	// ErrOpaqueWithoutCodec is returned when encoding a KindOpaque value
	// that doesn't implement value.Codec while the AllowPickling
	// (encoding/gob) fallback is disabled.
	ErrOpaqueWithoutCodec = errors.New("serialize: opaque value has no codec and cannot be persisted")

	// ErrMalformedDocument is returned when decoding a document whose
	// shape doesn't match any recognized encoding.
	ErrMalformedDocument = errors.New("serialize: malformed output document")

	// ErrBlobNotFound is returned when a blob token in a document
	// doesn't resolve via the configured BlobSource.
	ErrBlobNotFound = errors.New("serialize: referenced blob not found")

	// ErrCodecNotRegistered is returned when decoding an opaque
	// document whose tag has no matching value.Codec factory.
	ErrCodecNotRegistered = errors.New("serialize: no codec registered for opaque tag")
)
