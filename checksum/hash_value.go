// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"encoding/binary"
	"hash"
	"math"
	"sort"

	"github.com/MathiasStokholm/alkymi/value"
)

// Tag bytes prefixed onto a Kind's encoding before hashing, so that e.g.
// an empty sequence and an empty set never collide (spec.md §4.1).
const (
	tagNull byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagBytes
	tagSequence
	tagMapping
	tagSet
	tagPath
	tagOpaque
	tagOpaquePickled
)

// Value returns the hex-encoded checksum of v. Composite values are
// folded recursively: each element contributes its own tagged digest
// rather than raw bytes, so structurally distinct trees with
// accidentally identical flattened bytes can never collide.
func (h *Hasher) Value(v value.Value) (string, error) {
	digest, err := h.digest(v)
	if err != nil {
		return "", err
	}
	return hexEncode(digest), nil
}

// Outputs returns the hex-encoded checksum of an ordered tuple of
// output values, as produced by a single recipe evaluation. It is
// exactly the KindSequence encoding, so a 1-output recipe's Outputs
// checksum matches Value of a KindSequence wrapping that one output.
func (h *Hasher) Outputs(outputs []value.Value) (string, error) {
	return h.Value(value.Seq(outputs...))
}

// digest computes the raw (not hex-encoded) digest bytes for v.
func (h *Hasher) digest(v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.KindNull:
		return h.sumDigest(func(hh hash.Hash) { hh.Write([]byte{tagNull}) }), nil

	case value.KindBool:
		b, _ := v.AsBool()
		var bb byte
		if b {
			bb = 1
		}
		return h.sumDigest(func(hh hash.Hash) { hh.Write([]byte{tagBool, bb}) }), nil

	case value.KindInt:
		i, _ := v.AsInt()
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(i))
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagInt})
			hh.Write(buf[:])
		}), nil

	case value.KindFloat:
		f, _ := v.AsFloat()
		bits := math.Float64bits(f)
		if math.IsNaN(f) {
			// Canonicalize every NaN bit pattern to the same digest
			// input so Equal's NaN==NaN holds through a checksum too.
			bits = math.Float64bits(math.NaN())
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], bits)
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagFloat})
			hh.Write(buf[:])
		}), nil

	case value.KindString:
		s, _ := v.AsString()
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagString})
			writeLenPrefixed(hh, []byte(s))
		}), nil

	case value.KindBytes:
		b, _ := v.AsBytes()
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagBytes})
			writeLenPrefixed(hh, b)
		}), nil

	case value.KindSequence:
		seq, _ := v.AsSeq()
		digests := make([][]byte, len(seq))
		for i, el := range seq {
			d, err := h.digest(el)
			if err != nil {
				return nil, err
			}
			digests[i] = d
		}
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagSequence})
			writeUint64(hh, uint64(len(digests)))
			for _, d := range digests {
				writeLenPrefixed(hh, d)
			}
		}), nil

	case value.KindMapping:
		entries, _ := v.AsMap()
		type kv struct{ k, v []byte }
		kvs := make([]kv, len(entries))
		for i, e := range entries {
			kd, err := h.digest(e.Key)
			if err != nil {
				return nil, err
			}
			vd, err := h.digest(e.Val)
			if err != nil {
				return nil, err
			}
			kvs[i] = kv{kd, vd}
		}
		// Sort by key digest so insertion order never affects the
		// checksum, matching Equal's order-independent comparison.
		sort.Slice(kvs, func(i, j int) bool {
			return lessBytes(kvs[i].k, kvs[j].k)
		})
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagMapping})
			writeUint64(hh, uint64(len(kvs)))
			for _, e := range kvs {
				writeLenPrefixed(hh, e.k)
				writeLenPrefixed(hh, e.v)
			}
		}), nil

	case value.KindSet:
		set, _ := v.AsSet()
		digests := make([][]byte, len(set))
		for i, el := range set {
			d, err := h.digest(el)
			if err != nil {
				return nil, err
			}
			digests[i] = d
		}
		sort.Slice(digests, func(i, j int) bool { return lessBytes(digests[i], digests[j]) })
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagSet})
			writeUint64(hh, uint64(len(digests)))
			for _, d := range digests {
				writeLenPrefixed(hh, d)
			}
		}), nil

	case value.KindPath:
		p, _ := v.AsPath()
		return h.digestPath(p)

	case value.KindOpaque:
		return h.digestOpaque(v)

	default:
		return nil, ErrUnsupportedKind
	}
}

func (h *Hasher) digestOpaque(v value.Value) ([]byte, error) {
	opq, _ := v.AsOpaque()

	if codec, ok := opq.(value.Codec); ok {
		data, err := codec.MarshalBinary()
		if err != nil {
			return nil, err
		}
		tag := codec.ChecksumTag()
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagOpaque})
			writeLenPrefixed(hh, []byte(tag))
			writeLenPrefixed(hh, data)
		}), nil
	}

	if !h.opts.AllowPickling {
		return nil, ErrOpaqueNotAllowed
	}

	data, err := pickleFallback(opq)
	if err != nil {
		return nil, err
	}
	return h.sumDigest(func(hh hash.Hash) {
		hh.Write([]byte{tagOpaquePickled})
		writeLenPrefixed(hh, data)
	}), nil
}

func writeLenPrefixed(hh hash.Hash, b []byte) {
	writeUint64(hh, uint64(len(b)))
	hh.Write(b)
}

func writeUint64(hh hash.Hash, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	hh.Write(buf[:])
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
