// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package cachestore

// Record is the meta.json evaluation record for one recipe: the
// checksums spec.md §4.4's status evaluation compares against, plus
// the output document serialize.Encode produced for the recipe's
// outputs.
//
// Record itself knows nothing about foreach-specific splitting logic
// (spec.md §4.4's reusable/new/dropped element partition) — it just
// carries whatever the recipe package computed, including the optional
// per-element Elements slice a ForeachRecipe populates. That keeps this
// package a "thin wrapper" over the directory layout, as spec.md §4.3
// describes it, with all dirtiness policy living in package recipe.
type Record struct {
	// IngredientChecksums are the recorded output checksums of this
	// recipe's ingredients at the time of the last successful brew.
	IngredientChecksums []string `json:"ingredient_checksums"`

	// FuncChecksum is the recorded bound-function checksum.
	FuncChecksum string `json:"func_checksum"`

	// OutputChecksums are the recorded per-output checksums, in output
	// tuple order.
	OutputChecksums []string `json:"output_checksums"`

	// Output is the output document tree, as produced by
	// serialize.Encode against this recipe's RecipeDir as the blob
	// sink. It is nil for an arity-0 ("unit") recipe.
	Output any `json:"output_document,omitempty"`

	// Elements holds one entry per mapped input element a ForeachRecipe
	// currently has recorded, in input order. Nil for a plain Recipe.
	Elements []ElementRecord `json:"elements,omitempty"`

	// MappedInputKind names the value.Kind of the mapped input a
	// ForeachRecipe last recorded (its String() form). Empty for a
	// plain Recipe. Used to detect a sequence-to-mapping (or back)
	// change in the mapped ingredient's shape, which conservatively
	// invalidates every Elements entry rather than attempting
	// structural reuse across kinds.
	MappedInputKind string `json:"mapped_input_kind,omitempty"`
}

// ElementRecord is one ForeachRecipe mapped element's recorded state:
// enough to decide, on the next brew, whether that element's input is
// unchanged and can be reused without re-invoking the bound function.
//
// The element's key (its sequence index, or its mapping key) is
// recorded only as a checksum, not as a reconstructible document: the
// engine's entire dirtiness model is checksum-equality based, so a
// matching KeyChecksum is exactly as much identity as a match needs,
// and skips having to decode and re-compare arbitrary key values.
type ElementRecord struct {
	// KeyChecksum is the recorded checksum of this element's key.
	KeyChecksum string `json:"key_checksum"`

	// InputChecksum is the recorded checksum of this element's mapped
	// input value.
	InputChecksum string `json:"input_checksum"`

	// OutputChecksum is the recorded checksum of this element's output.
	OutputChecksum string `json:"output_checksum"`

	// Output is this element's output document tree.
	Output any `json:"output_document"`
}
