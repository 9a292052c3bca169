// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package recipe implements spec.md §4.4: the Recipe, ForeachRecipe,
// and Arg node types, their status evaluation, and the per-node
// dirtiness rules §4.4 and §4.5 describe. It knows nothing about
// concurrent execution — that's package scheduler — only about what a
// single node's current status is and how to invoke its bound
// function.
package recipe

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recipe package.
var (
	// ErrNilBoundFunction is returned when a recipe is built with no
	// function to invoke.
	ErrNilBoundFunction = errors.New("recipe: bound function must not be nil")

	// ErrOutputArityMismatch is returned when a bound function returns
	// a different number of outputs than the recipe declares.
	ErrOutputArityMismatch = errors.New("recipe: bound function returned wrong number of outputs")

	// ErrForeachMappedInputKind is returned when a ForeachRecipe's
	// mapped ingredient resolves to anything other than a sequence or
	// a mapping.
	ErrForeachMappedInputKind = errors.New("recipe: foreach mapped input must be a sequence or mapping")

	// ErrArgNotSet is returned by Arg.Value for an Arg built with
	// NewUnsetArg before Set has ever been called.
	ErrArgNotSet = errors.New("recipe: arg has no value set")

	// ErrEmptyName is returned when a recipe or arg is built with an
	// empty name.
	ErrEmptyName = errors.New("recipe: name must not be empty")
)

// UserCodeError wraps a panic-free error returned by a bound function,
// attaching the recipe name that raised it. Per spec.md §7 this is the
// UserCodeError taxonomy entry: the original message is preserved, not
// replaced, so the caller sees exactly what the user's code reported.
type UserCodeError struct {
	Recipe string
	Err    error
}

func (e *UserCodeError) Error() string {
	return fmt.Sprintf("recipe %q: %v", e.Recipe, e.Err)
}

func (e *UserCodeError) Unwrap() error { return e.Err }
