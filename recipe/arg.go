// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package recipe

import (
	"context"
	"sync"

	"github.com/MathiasStokholm/alkymi/checksum"
	"github.com/MathiasStokholm/alkymi/value"
)

// Arg is a mutable leaf node: a recipe-graph input the caller can
// change between brews via Set (spec.md §6, "an argument-holder recipe
// exposes set(value) to mutate its stored value; setting invalidates
// downstream records by changing its output checksum"). An Arg is
// never itself persisted to the cache store — its value is whatever
// the owning process currently holds, which is exactly the semantics a
// mutable CLI-flag-bound input needs.
type Arg struct {
	name string
	doc  string

	hasher *checksum.Hasher

	mu  sync.Mutex
	set bool
	val value.Value
}

var _ Node = (*Arg)(nil)

// NewArg constructs an Arg named name holding initial as its starting
// value.
func NewArg(name string, initial value.Value) (*Arg, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	return &Arg{name: name, set: true, val: initial}, nil
}

// NewUnsetArg constructs an Arg with no initial value. Until Set is
// called, Value returns ErrArgNotSet and the arg's status is
// StatusNotEvaluatedYet.
func NewUnsetArg(name string) (*Arg, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	return &Arg{name: name}, nil
}

// Name returns the arg's stable identifier.
func (a *Arg) Name() string { return a.name }

// Doc returns the arg's documentation string.
func (a *Arg) Doc() string { return a.doc }

// SetDoc sets the arg's documentation string.
func (a *Arg) SetDoc(doc string) { a.doc = doc }

// Ingredients is always empty: an Arg is a graph leaf.
func (a *Arg) Ingredients() []Node { return nil }

func (a *Arg) bind(hasher *checksum.Hasher) {
	a.hasher = hasher
}

// Set mutates the arg's stored value. A subsequent status/brew call
// sees a changed checksum and reports every downstream recipe dirty.
func (a *Arg) Set(v value.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.val = v
	a.set = true
}

// Value returns the arg's current value.
func (a *Arg) Value() (value.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.set {
		return value.Value{}, ErrArgNotSet
	}
	return a.val, nil
}

// computeStatus implements statusEvaluator: an Arg is always Ok once
// set (its "cache" is simply its live in-memory value, so there is
// nothing to compare it against) and NotEvaluatedYet before that.
func (a *Arg) computeStatus(context.Context, StatusMap) (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.set {
		return StatusNotEvaluatedYet, nil
	}
	return StatusOk, nil
}

// currentChecksum implements checksumProvider.
func (a *Arg) currentChecksum() (string, bool) {
	a.mu.Lock()
	v, set := a.val, a.set
	a.mu.Unlock()
	if !set {
		return "", false
	}
	sum, err := a.hasher.Value(v)
	if err != nil {
		return "", false
	}
	return sum, true
}

// currentValue implements valueProvider.
func (a *Arg) currentValue() (value.Value, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.set {
		return value.Value{}, false, nil
	}
	return a.val, true, nil
}
