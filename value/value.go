// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package value implements the tagged value representation recipes pass
// between each other and persist to the cache.
//
// Go has no runtime type introspection equivalent to a dynamically typed
// source language, so every value flowing through a recipe graph is
// represented as an explicit Value carrying one of a fixed set of Kinds.
// Serialization (package serialize) and checksumming (package checksum)
// both dispatch on Kind rather than on reflection.
package value

import "fmt"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindNull represents an absent value.
	KindNull Kind = iota
	// KindBool is a boolean primitive.
	KindBool
	// KindInt is a 64-bit signed integer primitive.
	KindInt
	// KindFloat is a 64-bit floating-point primitive.
	KindFloat
	// KindString is a UTF-8 string primitive.
	KindString
	// KindBytes is an opaque byte string primitive.
	KindBytes
	// KindSequence is an ordered list of Values.
	KindSequence
	// KindMapping is an ordered list of key/value Value pairs.
	KindMapping
	// KindSet is an unordered collection of Values with no duplicates.
	KindSet
	// KindPath is a reference to a file system path.
	KindPath
	// KindOpaque is a fallback for values with no native representation.
	KindOpaque
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindSet:
		return "set"
	case KindPath:
		return "path"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MapEntry is one key/value pair of a KindMapping value. Keys are Values,
// not strings, so non-string keys (ints, tuples, ...) survive a
// serialize/checksum round trip exactly as spec.md's "__map__" encoding
// requires.
type MapEntry struct {
	Key Value
	Val Value
}

// Value is a single tagged node in the value tree. The zero Value is a
// KindNull value.
type Value struct {
	kind Kind

	b  bool
	i  int64
	f  float64
	s  string // string payload, or the path string for KindPath
	by []byte

	seq []Value
	m   []MapEntry
	set []Value

	opq any
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a 64-bit signed integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a 64-bit float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a UTF-8 string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes wraps an opaque byte string. The slice is not copied; callers
// must not mutate it after passing it in.
func Bytes(b []byte) Value { return Value{kind: KindBytes, by: b} }

// Seq wraps an ordered sequence of values.
func Seq(items ...Value) Value {
	return Value{kind: KindSequence, seq: append([]Value(nil), items...)}
}

// Map wraps an ordered keyed mapping. Entry order is preserved so callers
// that want deterministic iteration control it themselves; checksum
// computation sorts independently by key hash (spec.md §4.1).
func Map(entries ...MapEntry) Value {
	return Value{kind: KindMapping, m: append([]MapEntry(nil), entries...)}
}

// NewSet wraps an unordered collection. Duplicate elements (by Equal) are
// not deduplicated here; callers that need set semantics must dedupe
// before constructing.
func NewSet(items ...Value) Value {
	return Value{kind: KindSet, set: append([]Value(nil), items...)}
}

// Path wraps a reference to a file system path. The path is not resolved
// until a checksum or serialization pass touches it.
func Path(p string) Value { return Value{kind: KindPath, s: p} }

// Opaque wraps an arbitrary Go value with no native Kind. v should
// implement Codec for a portable checksum/serialization; otherwise the
// reflection-based fallback described on Codec is used, gated by
// config.Config.AllowPickling.
func Opaque(v any) Value { return Value{kind: KindOpaque, opq: v} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean payload and whether v is a KindBool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload and whether v is a KindInt.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload and whether v is a KindFloat.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload and whether v is a KindString.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBytes returns the byte payload and whether v is a KindBytes.
func (v Value) AsBytes() ([]byte, bool) { return v.by, v.kind == KindBytes }

// AsSeq returns the element slice and whether v is a KindSequence.
func (v Value) AsSeq() ([]Value, bool) { return v.seq, v.kind == KindSequence }

// AsMap returns the entry slice and whether v is a KindMapping.
func (v Value) AsMap() ([]MapEntry, bool) { return v.m, v.kind == KindMapping }

// AsSet returns the element slice and whether v is a KindSet.
func (v Value) AsSet() ([]Value, bool) { return v.set, v.kind == KindSet }

// AsPath returns the path string and whether v is a KindPath.
func (v Value) AsPath() (string, bool) { return v.s, v.kind == KindPath }

// AsOpaque returns the wrapped value and whether v is a KindOpaque.
func (v Value) AsOpaque() (any, bool) { return v.opq, v.kind == KindOpaque }

// Equal reports whether two values are structurally equal. Mappings
// compare by entry set (order-independent), sets by element membership,
// matching the round-trip property in spec.md §8.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f || (isNaN(a.f) && isNaN(b.f))
	case KindString:
		return a.s == b.s
	case KindBytes:
		return string(a.by) == string(b.by)
	case KindPath:
		return a.s == b.s
	case KindSequence:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindSet:
		return sameMultiset(a.set, b.set)
	case KindMapping:
		if len(a.m) != len(b.m) {
			return false
		}
		used := make([]bool, len(b.m))
		for _, ea := range a.m {
			found := false
			for j, eb := range b.m {
				if used[j] {
					continue
				}
				if Equal(ea.Key, eb.Key) && Equal(ea.Val, eb.Val) {
					used[j] = true
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindOpaque:
		return a.opq == b.opq
	default:
		return false
	}
}

func sameMultiset(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, va := range a {
		found := false
		for j, vb := range b {
			if used[j] {
				continue
			}
			if Equal(va, vb) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func isNaN(f float64) bool { return f != f }
