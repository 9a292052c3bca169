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
	"encoding/json"
	"fmt"

	"github.com/MathiasStokholm/alkymi/value"
)

// Handle is a decoded output document node that has not yet forced any
// sidecar blob read. Constructing a Handle, inspecting its Kind, and
// reading any inline primitive never touches a blob; only AsBytes and
// AsOpaque do. This is what lets status evaluation (spec.md §4.5) walk
// an entire output tree using only meta.json.
//
// Numeric literals in doc must be decoded as json.Number (i.e. the
// caller unmarshaled meta.json with a json.Decoder that had UseNumber
// enabled), since a bare JSON number always denotes a KindInt here —
// KindFloat values are always wrapped under the reserved "__float__"
// key so NaN/Infinity and the int/float distinction survive the round
// trip.
type Handle struct {
	doc    any
	source BlobSource
}

// Decode wraps doc (the result of unmarshaling a meta.json output
// document with json.Number support enabled) as a lazily-readable
// Handle.
func Decode(doc any, source BlobSource) Handle {
	return Handle{doc: doc, source: source}
}

// Kind reports which value.Kind this node decodes to by inspecting the
// shape of doc alone.
func (h Handle) Kind() (value.Kind, error) {
	switch t := h.doc.(type) {
	case nil:
		return value.KindNull, nil
	case bool:
		return value.KindBool, nil
	case json.Number:
		return value.KindInt, nil
	case string:
		if _, ok := blobHash(t); ok {
			return value.KindBytes, nil
		}
		return value.KindString, nil
	case []any:
		return value.KindSequence, nil
	case map[string]any:
		switch {
		case has(t, mapKey):
			return value.KindMapping, nil
		case has(t, setKey):
			return value.KindSet, nil
		case has(t, pathKey):
			return value.KindPath, nil
		case has(t, opaqueKey):
			return value.KindOpaque, nil
		case has(t, floatKey):
			return value.KindFloat, nil
		}
	}
	return 0, fmt.Errorf("%w: unrecognized document shape %T", ErrMalformedDocument, h.doc)
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// AsBool returns the boolean payload, forcing no I/O.
func (h Handle) AsBool() (bool, error) {
	b, ok := h.doc.(bool)
	if !ok {
		return false, fmt.Errorf("%w: not a bool", ErrMalformedDocument)
	}
	return b, nil
}

// AsInt returns the integer payload, forcing no I/O.
func (h Handle) AsInt() (int64, error) {
	n, ok := h.doc.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: not an int", ErrMalformedDocument)
	}
	return n.Int64()
}

// AsFloat returns the float payload (including NaN/+-Inf), forcing no
// blob I/O — the value is always inlined as text under "__float__".
func (h Handle) AsFloat() (float64, error) {
	m, ok := h.doc.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: not a float", ErrMalformedDocument)
	}
	raw, ok := m[floatKey]
	if !ok {
		return 0, fmt.Errorf("%w: not a float", ErrMalformedDocument)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("%w: malformed float payload", ErrMalformedDocument)
	}
	return parseFloat(s)
}

// AsString returns the string payload, forcing no I/O.
func (h Handle) AsString() (string, error) {
	s, ok := h.doc.(string)
	if !ok {
		return "", fmt.Errorf("%w: not a string", ErrMalformedDocument)
	}
	if _, isBlob := blobHash(s); isBlob {
		return "", fmt.Errorf("%w: not a string", ErrMalformedDocument)
	}
	return s, nil
}

// AsPath returns the path string, forcing no I/O.
func (h Handle) AsPath() (string, error) {
	m, ok := h.doc.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: not a path", ErrMalformedDocument)
	}
	raw, ok := m[pathKey]
	if !ok {
		return "", fmt.Errorf("%w: not a path", ErrMalformedDocument)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: malformed path payload", ErrMalformedDocument)
	}
	return s, nil
}

// AsBytes reads the referenced sidecar blob. This is the first point at
// which a Handle performs I/O.
func (h Handle) AsBytes() ([]byte, error) {
	s, ok := h.doc.(string)
	if !ok {
		return nil, fmt.Errorf("%w: not bytes", ErrMalformedDocument)
	}
	hash, ok := blobHash(s)
	if !ok {
		return nil, fmt.Errorf("%w: not bytes", ErrMalformedDocument)
	}
	data, err := h.source.ReadBlob(hash)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// AsSeq returns sub-handles over a sequence's elements without reading
// any of their blobs.
func (h Handle) AsSeq() ([]Handle, error) {
	seq, ok := h.doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: not a sequence", ErrMalformedDocument)
	}
	out := make([]Handle, len(seq))
	for i, el := range seq {
		out[i] = Handle{doc: el, source: h.source}
	}
	return out, nil
}

// HandleEntry is one key/value pair of a decoded mapping.
type HandleEntry struct {
	Key Handle
	Val Handle
}

// AsMap returns sub-handles over a mapping's entries.
func (h Handle) AsMap() ([]HandleEntry, error) {
	m, ok := h.doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not a mapping", ErrMalformedDocument)
	}
	raw, ok := m[mapKey]
	if !ok {
		return nil, fmt.Errorf("%w: not a mapping", ErrMalformedDocument)
	}
	pairs, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: malformed mapping payload", ErrMalformedDocument)
	}
	out := make([]HandleEntry, len(pairs))
	for i, p := range pairs {
		kv, ok := p.([]any)
		if !ok || len(kv) != 2 {
			return nil, fmt.Errorf("%w: malformed mapping entry", ErrMalformedDocument)
		}
		out[i] = HandleEntry{
			Key: Handle{doc: kv[0], source: h.source},
			Val: Handle{doc: kv[1], source: h.source},
		}
	}
	return out, nil
}

// AsSet returns sub-handles over a set's elements.
func (h Handle) AsSet() ([]Handle, error) {
	m, ok := h.doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not a set", ErrMalformedDocument)
	}
	raw, ok := m[setKey]
	if !ok {
		return nil, fmt.Errorf("%w: not a set", ErrMalformedDocument)
	}
	elems, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: malformed set payload", ErrMalformedDocument)
	}
	out := make([]Handle, len(elems))
	for i, el := range elems {
		out[i] = Handle{doc: el, source: h.source}
	}
	return out, nil
}

// AsOpaque reads the referenced blob and reconstructs the opaque value
// it holds: a registered value.Codec for a codec-backed opaque, or the
// gob-decoded value for one persisted through the AllowPickling
// fallback (see encodeOpaque). Either way the caller gets back an any
// that is fed straight to value.Opaque by Materialize.
func (h Handle) AsOpaque() (any, error) {
	m, ok := h.doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not opaque", ErrMalformedDocument)
	}
	raw, ok := m[opaqueKey]
	if !ok {
		return nil, fmt.Errorf("%w: not opaque", ErrMalformedDocument)
	}
	opq, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: malformed opaque payload", ErrMalformedDocument)
	}

	blobTok, _ := opq["blob"].(string)
	hash, ok := blobHash(blobTok)
	if !ok {
		return nil, fmt.Errorf("%w: malformed opaque blob token", ErrMalformedDocument)
	}
	data, err := h.source.ReadBlob(hash)
	if err != nil {
		return nil, err
	}

	if pickled, _ := opq[opaquePickledKey].(bool); pickled {
		var out any
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}

	tag, _ := opq["tag"].(string)
	codec, err := value.DecodeOpaque(tag, data)
	if err != nil {
		if err == value.ErrCodecNotRegistered {
			return nil, fmt.Errorf("%w: %s", ErrCodecNotRegistered, tag)
		}
		return nil, err
	}
	return codec, nil
}

// Materialize fully decodes h into a concrete value.Value tree,
// forcing every blob this subtree references. Bound functions call this
// (or a narrower accessor) only for inputs they actually consume.
func (h Handle) Materialize() (value.Value, error) {
	kind, err := h.Kind()
	if err != nil {
		return value.Value{}, err
	}
	switch kind {
	case value.KindNull:
		return value.Null(), nil
	case value.KindBool:
		b, err := h.AsBool()
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(b), nil
	case value.KindInt:
		i, err := h.AsInt()
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(i), nil
	case value.KindFloat:
		f, err := h.AsFloat()
		if err != nil {
			return value.Value{}, err
		}
		return value.Float(f), nil
	case value.KindString:
		s, err := h.AsString()
		if err != nil {
			return value.Value{}, err
		}
		return value.String(s), nil
	case value.KindBytes:
		b, err := h.AsBytes()
		if err != nil {
			return value.Value{}, err
		}
		return value.Bytes(b), nil
	case value.KindPath:
		p, err := h.AsPath()
		if err != nil {
			return value.Value{}, err
		}
		return value.Path(p), nil
	case value.KindSequence:
		elems, err := h.AsSeq()
		if err != nil {
			return value.Value{}, err
		}
		vals := make([]value.Value, len(elems))
		for i, el := range elems {
			vals[i], err = el.Materialize()
			if err != nil {
				return value.Value{}, err
			}
		}
		return value.Seq(vals...), nil
	case value.KindMapping:
		entries, err := h.AsMap()
		if err != nil {
			return value.Value{}, err
		}
		out := make([]value.MapEntry, len(entries))
		for i, e := range entries {
			k, err := e.Key.Materialize()
			if err != nil {
				return value.Value{}, err
			}
			v, err := e.Val.Materialize()
			if err != nil {
				return value.Value{}, err
			}
			out[i] = value.MapEntry{Key: k, Val: v}
		}
		return value.Map(out...), nil
	case value.KindSet:
		elems, err := h.AsSet()
		if err != nil {
			return value.Value{}, err
		}
		vals := make([]value.Value, len(elems))
		for i, el := range elems {
			vals[i], err = el.Materialize()
			if err != nil {
				return value.Value{}, err
			}
		}
		return value.NewSet(vals...), nil
	case value.KindOpaque:
		opq, err := h.AsOpaque()
		if err != nil {
			return value.Value{}, err
		}
		return value.Opaque(opq), nil
	default:
		return value.Value{}, ErrMalformedDocument
	}
}
