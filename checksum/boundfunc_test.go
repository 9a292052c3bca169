// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"testing"

	"github.com/MathiasStokholm/alkymi/value"
)

func addOne(x int) int { return x + 1 }

func addTwo(x int) int { return x + 2 }

func addOneRenamed(x int) int { return x + 1 }

func TestFunc_DifferentBodiesDiffer(t *testing.T) {
	h := New(Options{})

	a, err := h.Func(BoundFunc{Fn: addOne})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	b, err := h.Func(BoundFunc{Fn: addTwo})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	if a == b {
		t.Error("functions with different bodies should checksum differently")
	}
}

func TestFunc_SameBodyStable(t *testing.T) {
	h := New(Options{})

	a, err := h.Func(BoundFunc{Fn: addOne})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	b, err := h.Func(BoundFunc{Fn: addOne})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	if a != b {
		t.Errorf("checksum of the same function should be stable: %s != %s", a, b)
	}
}

func TestFunc_NameDoesNotAffectChecksum(t *testing.T) {
	h := New(Options{})

	a, err := h.Func(BoundFunc{Fn: addOne})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	b, err := h.Func(BoundFunc{Fn: addOneRenamed})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	if a != b {
		t.Errorf("functions with byte-identical source should checksum the same regardless of name: %s != %s", a, b)
	}
}

func TestFunc_CapturesAffectChecksum(t *testing.T) {
	h := New(Options{})

	withOne, err := h.Func(BoundFunc{Fn: addOne, Captures: []value.Value{value.Int(1)}})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	withTwo, err := h.Func(BoundFunc{Fn: addOne, Captures: []value.Value{value.Int(2)}})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	if withOne == withTwo {
		t.Error("differing declared captures should change the checksum")
	}
}

func TestFunc_DefaultsAffectChecksum(t *testing.T) {
	h := New(Options{})

	a, err := h.Func(BoundFunc{Fn: addOne, Defaults: []value.Value{value.Int(10)}})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	b, err := h.Func(BoundFunc{Fn: addOne, Defaults: []value.Value{value.Int(20)}})
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	if a == b {
		t.Error("differing declared defaults should change the checksum")
	}
}

func TestFunc_NilFunction(t *testing.T) {
	h := New(Options{})
	_, err := h.Func(BoundFunc{})
	if err != ErrNilFunc {
		t.Errorf("err = %v, want ErrNilFunc", err)
	}
}

func TestFunc_NestedBoundFuncCapture(t *testing.T) {
	h := New(Options{})
	inner := BoundFunc{Fn: addOne}
	outer := BoundFunc{Fn: addTwo, Captures: []value.Value{value.Opaque(inner)}}

	sum, err := h.Func(outer)
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	if sum == "" {
		t.Error("expected non-empty checksum for a bound func capturing another bound func")
	}
}
