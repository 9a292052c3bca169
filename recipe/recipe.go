// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package recipe

import (
	"context"
	"fmt"
	"sync"

	"github.com/MathiasStokholm/alkymi/cachestore"
	"github.com/MathiasStokholm/alkymi/checksum"
	"github.com/MathiasStokholm/alkymi/serialize"
	"github.com/MathiasStokholm/alkymi/value"
)

// Func is a recipe's bound function: it receives one value per
// ingredient, in ingredient order, and returns a fixed-arity tuple of
// outputs (spec.md §3, "Fixed-arity tuple of values").
//
// An ingredient's contributed value is always its whole output tuple
// wrapped as a single value.Value (a KindSequence for arity != 1, the
// lone output directly for arity == 1) — see wrapOutputs. This
// keeps "one ingredient -> one input value" uniform across Recipe,
// ForeachRecipe, and Arg ingredients instead of special-casing arity at
// every call site.
type Func func(ctx context.Context, inputs []value.Value) ([]value.Value, error)

// Recipe is a DAG node wrapping a bound Func and its ingredient list
// (spec.md §3, §4.4). Construct one with NewBuilder.
type Recipe struct {
	name        string
	doc         string
	ingredients []Node
	fn          Func
	boundFn     any
	captures    []value.Value
	defaults    []value.Value
	arity       int
	cleanliness func([]value.Value) bool
	transient   bool
	cacheEnabled bool

	hasher *checksum.Hasher
	dir    *cachestore.RecipeDir

	mu      sync.Mutex
	loaded  bool
	record  *cachestore.Record
	handles []serialize.Handle
}

var _ Node = (*Recipe)(nil)

// Builder constructs a Recipe via a fluent API, the Go equivalent of the
// source language's decorator (spec.md Design Notes item 2).
type Builder struct {
	r   *Recipe
	err error
}

// NewBuilder starts building a Recipe named name. name becomes the
// recipe's cache directory component and must be unique within a graph.
func NewBuilder(name string) *Builder {
	r := &Recipe{name: name, arity: 1, cacheEnabled: true}
	b := &Builder{r: r}
	if name == "" {
		b.err = ErrEmptyName
	}
	return b
}

// Doc sets the recipe's documentation string.
func (b *Builder) Doc(doc string) *Builder {
	b.r.doc = doc
	return b
}

// Ingredients declares this recipe's upstream dependencies, in the
// order Func's inputs slice will present them. Go has no fixture-style
// reflection over Func's parameter names (spec.md Design Notes item 3),
// so ingredients are always explicit.
func (b *Builder) Ingredients(ingredients ...Node) *Builder {
	b.r.ingredients = ingredients
	return b
}

// Fn sets the bound function invoked when the recipe is dirty. fn is
// also used, unwrapped, as checksum.BoundFunc.Fn for bound-function
// checksumming.
func (b *Builder) Fn(fn Func) *Builder {
	b.r.fn = fn
	b.r.boundFn = fn
	return b
}

// Captures declares the values of free variables fn closes over that
// should participate in its bound-function checksum (spec.md §4.1).
// Go can't recover a closure's captured cell values via reflection, so
// a caller declares them explicitly (Design Notes item 3/5).
func (b *Builder) Captures(captures ...value.Value) *Builder {
	b.r.captures = captures
	return b
}

// Defaults declares default argument values substituted for
// ingredients Ingredients didn't supply, folded into the bound-function
// checksum alongside Captures.
func (b *Builder) Defaults(defaults ...value.Value) *Builder {
	b.r.defaults = defaults
	return b
}

// Arity sets the number of values fn returns. Defaults to 1.
func (b *Builder) Arity(arity int) *Builder {
	b.r.arity = arity
	return b
}

// Cleanliness installs a custom predicate consulted during status
// evaluation (spec.md §4.4's "custom cleanliness predicate"). It
// receives the recipe's current cached outputs and returns false to
// force StatusCustomDirty regardless of checksum agreement.
func (b *Builder) Cleanliness(fn func(outputs []value.Value) bool) *Builder {
	b.r.cleanliness = fn
	return b
}

// Transient marks the recipe's outputs as never persisted; it is always
// re-invoked (spec.md §3, "transient: outputs are never persisted and
// the node is always dirty").
func (b *Builder) Transient() *Builder {
	b.r.transient = true
	return b
}

// NoCache disables disk persistence for this recipe specifically, while
// still allowing in-memory reuse within a single brew (distinct from
// Transient, which additionally means "always invoke").
func (b *Builder) NoCache() *Builder {
	b.r.cacheEnabled = false
	return b
}

// Build validates and returns the constructed Recipe. The returned
// Recipe is not yet bound to a checksum.Hasher or cachestore.Store —
// that happens when it's registered with a Session.
func (b *Builder) Build() (*Recipe, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.r.fn == nil {
		return nil, ErrNilBoundFunction
	}
	if b.r.arity < 0 {
		return nil, fmt.Errorf("recipe %q: %w", b.r.name, ErrOutputArityMismatch)
	}
	return b.r, nil
}

// Name returns the recipe's stable identifier.
func (r *Recipe) Name() string { return r.name }

// Doc returns the recipe's documentation string.
func (r *Recipe) Doc() string { return r.doc }

// Ingredients returns the recipe's upstream dependencies in declaration
// order.
func (r *Recipe) Ingredients() []Node { return r.ingredients }

// Transient reports whether this recipe is transient, i.e. its outputs
// are never persisted.
func (r *Recipe) Transient() bool { return r.transient }

// bind attaches the checksum.Hasher and cachestore.Store a Session
// constructs the recipe graph with. Called once, at registration time.
func (r *Recipe) bind(hasher *checksum.Hasher, store *cachestore.Store) error {
	r.hasher = hasher
	if r.cacheEnabled && !r.transient && store != nil {
		dir, err := store.Dir(r.name)
		if err != nil {
			return err
		}
		r.dir = dir
	}
	return nil
}

// ensureLoaded reads this recipe's cache record on first use. A
// transient or caching-disabled recipe, or one with no record yet, is
// simply left with record == nil ("not evaluated").
func (r *Recipe) ensureLoaded() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLoadedLocked()
}

func (r *Recipe) ensureLoadedLocked() error {
	if r.loaded {
		return nil
	}
	r.loaded = true
	if r.transient || r.dir == nil {
		return nil
	}
	rec, ok, err := r.dir.LoadRecord()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	handles, err := r.dir.LoadOutputHandles(rec).AsSeq()
	if err != nil {
		// Malformed output document under an otherwise readable
		// meta.json: treat the same as CacheCorruption (spec.md §7),
		// not evaluated rather than an error.
		return nil
	}
	r.record = rec
	r.handles = handles
	return nil
}

// computeStatus implements statusEvaluator for Recipe (spec.md §4.4).
func (r *Recipe) computeStatus(_ context.Context, ingredientStatuses StatusMap) (Status, error) {
	if err := r.ensureLoaded(); err != nil {
		return 0, err
	}
	if r.transient {
		return StatusNotEvaluatedYet, nil
	}
	if r.record == nil {
		return StatusNotEvaluatedYet, nil
	}

	var candidates []Status

	ingredientsDirty := false
	currentChecksums := make([]string, len(r.ingredients))
	for i, ing := range r.ingredients {
		if ingredientStatuses[ing.Name()].Dirty() {
			ingredientsDirty = true
		}
		sum, ok := ingredientChecksum(ing)
		if !ok {
			ingredientsDirty = true
		}
		currentChecksums[i] = sum
	}
	if ingredientsDirty || !equalChecksums(currentChecksums, r.record.IngredientChecksums) {
		candidates = append(candidates, StatusInputsChanged)
	}

	funcSum, err := r.funcChecksum()
	if err != nil {
		return 0, err
	}
	if funcSum != r.record.FuncChecksum {
		candidates = append(candidates, StatusBoundFunctionChanged)
	}

	outputsValid, err := r.outputsStillValid()
	if err != nil {
		return 0, err
	}
	if !outputsValid {
		candidates = append(candidates, StatusOutputsInvalid)
	}

	if r.cleanliness != nil {
		outputs, err := r.currentOutputsValues()
		if err != nil {
			return 0, err
		}
		if !r.cleanliness(outputs) {
			candidates = append(candidates, StatusCustomDirty)
		}
	}

	return highestPriority(candidates...), nil
}

func (r *Recipe) funcChecksum() (string, error) {
	return r.hasher.Func(checksum.BoundFunc{
		Fn:       r.boundFn,
		Captures: r.captures,
		Defaults: r.defaults,
	})
}

func (r *Recipe) outputsStillValid() (bool, error) {
	if len(r.handles) != len(r.record.OutputChecksums) {
		return false, nil
	}
	for i, h := range r.handles {
		sum, err := r.hasher.HandleChecksum(h)
		if err != nil {
			return false, nil
		}
		if sum != r.record.OutputChecksums[i] {
			return false, nil
		}
	}
	return true, nil
}

func (r *Recipe) currentOutputsValues() ([]value.Value, error) {
	vals := make([]value.Value, len(r.handles))
	for i, h := range r.handles {
		v, err := h.Materialize()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// currentChecksum implements checksumProvider for Recipe: the combined
// checksum of this recipe's whole output tuple, as reported to a
// dependent recipe's status evaluation.
func (r *Recipe) currentChecksum() (string, bool) {
	if err := r.ensureLoaded(); err != nil || r.record == nil {
		return "", false
	}
	return checksum.CombineChecksums(r.hasher, r.record.OutputChecksums), true
}

// currentValue implements valueProvider for Recipe: the single wrapped
// value passed to a dependent recipe's Func.
func (r *Recipe) currentValue() (value.Value, bool, error) {
	if err := r.ensureLoaded(); err != nil {
		return value.Value{}, false, err
	}
	if r.record == nil {
		return value.Value{}, false, nil
	}
	vals, err := r.currentOutputsValues()
	if err != nil {
		return value.Value{}, false, err
	}
	return wrapOutputs(vals), true, nil
}

// wrapOutputs implements the "one ingredient -> one value" convention:
// an arity-1 recipe contributes its single output directly; any other
// arity (including 0) contributes its whole output tuple as a
// KindSequence.
func wrapOutputs(outputs []value.Value) value.Value {
	if len(outputs) == 1 {
		return outputs[0]
	}
	return value.Seq(outputs...)
}

// Outputs returns the recipe's current outputs, if any have been
// recorded (either in this process or on a previous run). ok is false
// if the recipe has never been successfully evaluated.
func (r *Recipe) Outputs(_ context.Context) (outputs []value.Value, ok bool, err error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, false, err
	}
	if r.record == nil {
		return nil, false, nil
	}
	vals, err := r.currentOutputsValues()
	if err != nil {
		return nil, false, err
	}
	return vals, true, nil
}

// Status reports this recipe's dirtiness against its cached state and
// ingredient outputs (spec.md §4.4). It performs a fresh, memoized
// traversal of the recipe's transitive ingredients (spec.md §4.5); use
// Evaluate directly to share one traversal across several target nodes.
func (r *Recipe) Status(ctx context.Context) (Status, error) {
	statuses, err := Evaluate(ctx, r)
	if err != nil {
		return 0, err
	}
	return statuses[r.name], nil
}

// IngredientValues gathers the single wrapped current value of each
// ingredient, for passing to Invoke. Ingredients are expected to
// already be clean (the scheduler invokes recipes bottom-up); a missing
// current value for a required ingredient is a scheduling defect, not a
// user-facing error.
func (r *Recipe) IngredientValues(_ context.Context) ([]value.Value, error) {
	vals := make([]value.Value, len(r.ingredients))
	for i, ing := range r.ingredients {
		v, ok, err := ingredientValue(ing)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("recipe %q: ingredient %q has no current value", r.name, ing.Name())
		}
		vals[i] = v
	}
	return vals, nil
}

// Invoke calls the bound function with ingredientValues (one per
// ingredient, in order) and validates the returned arity.
func (r *Recipe) Invoke(ctx context.Context, ingredientValues []value.Value) ([]value.Value, error) {
	outputs, err := r.fn(ctx, ingredientValues)
	if err != nil {
		return nil, &UserCodeError{Recipe: r.name, Err: err}
	}
	if len(outputs) != r.arity {
		return nil, fmt.Errorf("%w: recipe %q returned %d, want %d", ErrOutputArityMismatch, r.name, len(outputs), r.arity)
	}
	return outputs, nil
}

// Commit records a successful invocation: it persists outputs (unless
// transient or caching is disabled) and updates in-memory state so a
// dependent recipe's subsequent IngredientValues/currentChecksum calls
// within the same brew see the fresh result without a disk round trip.
func (r *Recipe) Commit(ingredientChecksums []string, outputs []value.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	funcSum, err := r.funcChecksum()
	if err != nil {
		return err
	}
	outChecksums := make([]string, len(outputs))
	for i, v := range outputs {
		sum, err := r.hasher.Value(v)
		if err != nil {
			return err
		}
		outChecksums[i] = sum
	}

	rec := &cachestore.Record{
		IngredientChecksums: append([]string(nil), ingredientChecksums...),
		FuncChecksum:        funcSum,
		OutputChecksums:     outChecksums,
	}

	var sink serialize.BlobSink
	var source serialize.BlobSource
	if r.dir != nil {
		sink, source = r.dir, r.dir
	} else {
		mem := newMemBlobStore()
		sink, source = mem, mem
	}

	doc, err := serialize.Encode(value.Seq(outputs...), sink, r.hasher.AllowPickling())
	if err != nil {
		return err
	}
	rec.Output = doc

	if r.dir != nil {
		if err := r.dir.StoreRecord(rec); err != nil {
			return err
		}
	}

	handles, err := serialize.Decode(doc, source).AsSeq()
	if err != nil {
		return err
	}

	r.record = rec
	r.handles = handles
	r.loaded = true
	return nil
}
