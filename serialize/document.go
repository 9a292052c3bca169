// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package serialize

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MathiasStokholm/alkymi/value"
)

// blobTokenPrefix marks a JSON string as an indirection to a sidecar
// blob rather than a literal string value, per spec.md §4.2.
const blobTokenPrefix = "::blob::"

// Container discriminator keys, matching spec.md §4.2 exactly so the
// on-disk meta.json format is the literal wire format described there,
// not merely an equivalent one.
const (
	mapKey    = "__map__"
	setKey    = "__set__"
	pathKey   = "__path__"
	opaqueKey = "__opaque__"
	floatKey  = "__float__"
)

// opaquePickledKey, inside the opaqueKey payload, marks a value encoded
// through the reflection-based AllowPickling fallback instead of a
// value.Codec — there is no ChecksumTag to route decoding by, only a
// gob-encoded blob the registered concrete type can be gob.Decode'd
// into directly.
const opaquePickledKey = "pickled"

// BlobSink receives blob bytes during Encode and returns the hex hash
// used to name the sidecar file and to build the blob token.
type BlobSink interface {
	WriteBlob(data []byte) (hash string, err error)
}

// BlobSource resolves a blob token's hash back to bytes during Decode.
// Implementations must return ErrBlobNotFound (or a wrapping error) when
// the hash has no corresponding sidecar.
type BlobSource interface {
	ReadBlob(hash string) ([]byte, error)
}

// Encode converts v into a JSON-marshalable output document. Any bytes
// or opaque payload is written through sink and replaced by a blob
// token; everything else is inlined, matching spec.md's "status checks
// never load heavy payloads" requirement once the inverse, Decode, is
// used to read it back. allowPickling mirrors checksum.Options'
// AllowPickling: when true, a KindOpaque value with no value.Codec is
// persisted via the reflection-based encoding/gob fallback instead of
// failing with ErrOpaqueWithoutCodec.
func Encode(v value.Value, sink BlobSink, allowPickling bool) (any, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil

	case value.KindBool:
		b, _ := v.AsBool()
		return b, nil

	case value.KindInt:
		i, _ := v.AsInt()
		return i, nil

	case value.KindFloat:
		// Floats are never inlined as a bare JSON number: plain JSON
		// can't express NaN/Infinity, and a round trip through Go's
		// encoding/json "any" decoding can't otherwise tell an integral
		// float like 3.0 apart from the int 3. Both problems are sidestepped
		// by storing the exact text representation under a reserved key.
		f, _ := v.AsFloat()
		return map[string]any{floatKey: formatFloat(f)}, nil

	case value.KindString:
		s, _ := v.AsString()
		return s, nil

	case value.KindBytes:
		b, _ := v.AsBytes()
		hash, err := sink.WriteBlob(b)
		if err != nil {
			return nil, err
		}
		return blobToken(hash), nil

	case value.KindSequence:
		seq, _ := v.AsSeq()
		out := make([]any, len(seq))
		for i, el := range seq {
			doc, err := Encode(el, sink, allowPickling)
			if err != nil {
				return nil, err
			}
			out[i] = doc
		}
		return out, nil

	case value.KindMapping:
		entries, _ := v.AsMap()
		pairs := make([]any, len(entries))
		for i, e := range entries {
			kd, err := Encode(e.Key, sink, allowPickling)
			if err != nil {
				return nil, err
			}
			vd, err := Encode(e.Val, sink, allowPickling)
			if err != nil {
				return nil, err
			}
			pairs[i] = []any{kd, vd}
		}
		return map[string]any{mapKey: pairs}, nil

	case value.KindSet:
		set, _ := v.AsSet()
		out := make([]any, len(set))
		for i, el := range set {
			doc, err := Encode(el, sink, allowPickling)
			if err != nil {
				return nil, err
			}
			out[i] = doc
		}
		return map[string]any{setKey: out}, nil

	case value.KindPath:
		p, _ := v.AsPath()
		return map[string]any{pathKey: p}, nil

	case value.KindOpaque:
		return encodeOpaque(v, sink, allowPickling)

	default:
		return nil, fmt.Errorf("serialize: %w: %s", ErrMalformedDocument, v.Kind())
	}
}

func encodeOpaque(v value.Value, sink BlobSink, allowPickling bool) (any, error) {
	opq, _ := v.AsOpaque()
	if codec, ok := opq.(value.Codec); ok {
		data, err := codec.MarshalBinary()
		if err != nil {
			return nil, err
		}
		hash, err := sink.WriteBlob(data)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			opaqueKey: map[string]any{
				"tag":  codec.ChecksumTag(),
				"blob": blobToken(hash),
			},
		}, nil
	}

	if !allowPickling {
		return nil, ErrOpaqueWithoutCodec
	}

	// Encoding &opq (a pointer to the empty interface) makes gob record
	// opq's concrete dynamic type by name, so AsOpaque can decode it back
	// into an any — the caller must have registered that type with
	// gob.Register before any value of it is persisted, the same contract
	// value.RegisterCodec documents for the Codec path.
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&opq); err != nil {
		return nil, err
	}
	hash, err := sink.WriteBlob(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		opaqueKey: map[string]any{
			opaquePickledKey: true,
			"blob":           blobToken(hash),
		},
	}, nil
}

func blobToken(hash string) string { return blobTokenPrefix + hash }

func blobHash(token string) (string, bool) {
	if !strings.HasPrefix(token, blobTokenPrefix) {
		return "", false
	}
	return strings.TrimPrefix(token, blobTokenPrefix), true
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func parseFloat(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "+Inf":
		return math.Inf(1), nil
	case "-Inf":
		return math.Inf(-1), nil
	default:
		return strconv.ParseFloat(s, 64)
	}
}
