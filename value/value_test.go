// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package value

import "testing"

func TestEqual_Primitives(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null==null", Null(), Null(), true},
		{"bool equal", Bool(true), Bool(true), true},
		{"bool differ", Bool(true), Bool(false), false},
		{"int equal", Int(42), Int(42), true},
		{"string differ", String("a"), String("b"), false},
		{"kind mismatch", Int(1), String("1"), false},
		{"bytes equal", Bytes([]byte("abc")), Bytes([]byte("abc")), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Equal(c.a, c.b); got != c.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestEqual_NaN(t *testing.T) {
	nan := Float(nanValue())
	if !Equal(nan, nan) {
		t.Error("NaN should equal itself for round-trip comparison")
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestEqual_SequenceOrderMatters(t *testing.T) {
	a := Seq(Int(1), Int(2))
	b := Seq(Int(2), Int(1))
	if Equal(a, b) {
		t.Error("sequences with different order should not be equal")
	}
}

func TestEqual_SetIgnoresOrder(t *testing.T) {
	a := NewSet(Int(1), Int(2), Int(3))
	b := NewSet(Int(3), Int(1), Int(2))
	if !Equal(a, b) {
		t.Error("sets should compare by membership, not order")
	}
}

func TestEqual_MappingIgnoresEntryOrder(t *testing.T) {
	a := Map(MapEntry{String("k1"), Int(1)}, MapEntry{String("k2"), Int(2)})
	b := Map(MapEntry{String("k2"), Int(2)}, MapEntry{String("k1"), Int(1)})
	if !Equal(a, b) {
		t.Error("mappings should compare by entries, not insertion order")
	}
}

func TestEqual_MappingNonStringKeys(t *testing.T) {
	a := Map(MapEntry{Int(1), String("one")})
	b := Map(MapEntry{Int(1), String("one")})
	if !Equal(a, b) {
		t.Error("non-string keys should survive comparison")
	}
}

func TestAccessors_WrongKindReturnsFalse(t *testing.T) {
	v := Int(5)
	if _, ok := v.AsString(); ok {
		t.Error("AsString on a KindInt value should report ok=false")
	}
	if i, ok := v.AsInt(); !ok || i != 5 {
		t.Errorf("AsInt() = (%d, %v), want (5, true)", i, ok)
	}
}

type fakeCodec struct{ n int }

func (f *fakeCodec) ChecksumTag() string { return "fakeCodec" }
func (f *fakeCodec) MarshalBinary() ([]byte, error) {
	return []byte{byte(f.n)}, nil
}
func (f *fakeCodec) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errShortRead
	}
	f.n = int(data[0])
	return nil
}

var errShortRead = &shortReadError{}

type shortReadError struct{}

func (*shortReadError) Error() string { return "short read" }

func TestRegisterAndDecodeOpaque(t *testing.T) {
	RegisterCodec("fakeCodec", func() Codec { return &fakeCodec{} })

	original := &fakeCodec{n: 7}
	data, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	decoded, err := DecodeOpaque("fakeCodec", data)
	if err != nil {
		t.Fatalf("DecodeOpaque() error = %v", err)
	}
	got := decoded.(*fakeCodec)
	if got.n != 7 {
		t.Errorf("decoded.n = %d, want 7", got.n)
	}
}

func TestDecodeOpaque_UnregisteredTag(t *testing.T) {
	_, err := DecodeOpaque("no-such-tag", nil)
	if err != ErrCodecNotRegistered {
		t.Errorf("err = %v, want ErrCodecNotRegistered", err)
	}
}
