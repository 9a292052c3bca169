// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"hash"

	"github.com/cespare/xxhash/v2"
)

// hexEncode is a small shared helper so every public Hasher method
// encodes digests the same way.
func hexEncode(digest []byte) string { return hex.EncodeToString(digest) }

// Method selects the hash primitive folded over a value's structure.
// Neither option is cryptographically strong; both exist purely for
// fast, stable change detection (spec.md §1's non-goal on integrity).
type Method uint8

const (
	// MethodMD5 is the default per spec.md §4.1.
	MethodMD5 Method = iota
	// MethodXXHash trades MD5's ubiquity for xxhash's speed on large
	// inputs (large file contents, big sequences). spec.md §4.1 calls
	// this out explicitly as "optional xxhash acceleration".
	MethodXXHash
)

// FileChecksumMethod selects how a KindPath value that resolves to a
// regular file contributes to a checksum.
type FileChecksumMethod uint8

const (
	// FileChecksumContent hashes the file's byte contents (default).
	FileChecksumContent FileChecksumMethod = iota
	// FileChecksumMtime hashes the file's modification time instead of
	// its contents, trading correctness under touch-without-edit for
	// speed on large trees.
	FileChecksumMtime
)

// Options configures a Hasher. The zero Options value is the spec.md
// default: MD5, content-based file hashing, opaque pickling disabled.
type Options struct {
	Method             Method
	FileChecksumMethod FileChecksumMethod
	// AllowPickling enables the reflection-based fallback for opaque
	// values that don't implement value.Codec (spec.md's
	// allow_pickling configuration option).
	AllowPickling bool
	// FileMaxRetries bounds the TOCTOU retry loop in
	// digestFileContentAtomic.
	// Zero means the package default (3).
	FileMaxRetries int
}

// Hasher computes spec.md §4.1 checksums under a fixed set of Options.
// A Hasher is safe for concurrent use; it holds no mutable state.
type Hasher struct {
	opts Options
}

// New creates a Hasher. A nil-valued Options argument is not accepted;
// pass Options{} for defaults.
func New(opts Options) *Hasher {
	if opts.FileMaxRetries <= 0 {
		opts.FileMaxRetries = defaultFileMaxRetries
	}
	return &Hasher{opts: opts}
}

const defaultFileMaxRetries = 3

// AllowPickling reports whether this Hasher was configured to fall back
// to reflection-based hashing for opaque values without a value.Codec.
// Package recipe consults this before asking package serialize to
// persist such a value, since the pickling fallback is one policy
// shared by both the checksum and the serialized-bytes side of an
// opaque value (spec.md §4.1/§6 "allow_pickling").
func (h *Hasher) AllowPickling() bool {
	return h.opts.AllowPickling
}

func (h *Hasher) newHash() hash.Hash {
	switch h.opts.Method {
	case MethodXXHash:
		return xxhash.New()
	default:
		return md5.New()
	}
}

// sumDigest runs fn against a fresh hash.Hash for this Hasher's Method
// and returns the final digest bytes.
func (h *Hasher) sumDigest(fn func(hash.Hash)) []byte {
	hh := h.newHash()
	fn(hh)
	return hh.Sum(nil)
}
