// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package checksum implements spec.md §4.1: stable content fingerprints
// for values, file paths, and bound functions.
//
// Every Hasher method returns a hex-encoded digest that is stable across
// processes and platforms and reflects only the semantic content of its
// input, never a timestamp (other than a file's mtime when the caller
// explicitly opts into mtime-based file checksums).
package checksum

import "errors"

// Sentinel errors for the checksum package.
var (
	// ErrPathVanished is returned when a KindPath value's target
	// disappears or keeps changing while being hashed. spec.md §7
	// treats this as non-fatal during status evaluation (becomes
	// OutputsInvalid) and fatal during serialization.
	ErrPathVanished = errors.New("checksum: path vanished or kept changing during hashing")

	// ErrOpaqueNotAllowed is returned when a KindOpaque value doesn't
	// implement value.Codec and the Hasher's AllowPickling option is
	// false.
	ErrOpaqueNotAllowed = errors.New("checksum: opaque value has no codec and pickling fallback is disabled")

	// ErrUnsupportedKind is returned for a value.Kind the hasher does
	// not recognize (defensive; all Kinds are currently handled).
	ErrUnsupportedKind = errors.New("checksum: unsupported value kind")

	// ErrNilFunc is returned when BoundFunc.Fn is nil or is not a Go
	// func value.
	ErrNilFunc = errors.New("checksum: bound function must not be nil")

	// ErrFuncSourceNotFound is returned when the source range of a
	// bound function's body can't be located (e.g. the binary was
	// built without debug info).
	ErrFuncSourceNotFound = errors.New("checksum: could not locate bound function source")
)
