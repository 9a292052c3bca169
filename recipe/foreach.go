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

// ElementFunc is a ForeachRecipe's per-element bound function: it
// receives the element's key (its sequence index wrapped as a
// value.Int, or its mapping key) and the element's current input value,
// and returns the element's output (spec.md §4, "applies its function
// once per element of a designated mapped ingredient").
type ElementFunc func(ctx context.Context, key value.Value, element value.Value) (value.Value, error)

// mappedInputKindSequence and mappedInputKindMapping are the only two
// value.Kinds ForeachRecipe accepts for its mapped ingredient (spec.md
// §3, "must be an ordered sequence or a keyed mapping").
const (
	mappedInputKindSequence = "sequence"
	mappedInputKindMapping  = "mapping"
)

// ForeachRecipe is a Recipe-like node that designates one ingredient as
// the mapped input and applies ElementFunc once per element, with per-
// element memoization (spec.md §3, §4.4).
type ForeachRecipe struct {
	name        string
	doc         string
	ingredients []Node
	mappedIndex int
	elementFn   ElementFunc
	boundFn     any
	captures    []value.Value
	defaults    []value.Value
	cleanliness func(value.Value) bool
	transient   bool
	cacheEnabled bool

	hasher *checksum.Hasher
	dir    *cachestore.RecipeDir

	mu     sync.Mutex
	loaded bool
	record *cachestore.Record
	// mem backs blobSource/blobSink when dir is nil (transient or
	// NoCache). It is created once and retained for this ForeachRecipe's
	// lifetime so a blob written by Gather is still readable by a later
	// Plan/Outputs/currentValue call against the same instance, the way
	// Recipe.Commit retains its decoded Handles for the same reason.
	mem *memBlobStore
}

var _ Node = (*ForeachRecipe)(nil)

// ForeachBuilder constructs a ForeachRecipe via a fluent API.
type ForeachBuilder struct {
	f         *ForeachRecipe
	mapped    Node
	err       error
}

// NewForeachBuilder starts building a ForeachRecipe named name.
func NewForeachBuilder(name string) *ForeachBuilder {
	f := &ForeachRecipe{name: name, mappedIndex: -1, cacheEnabled: true}
	b := &ForeachBuilder{f: f}
	if name == "" {
		b.err = ErrEmptyName
	}
	return b
}

// Doc sets the recipe's documentation string.
func (b *ForeachBuilder) Doc(doc string) *ForeachBuilder {
	b.f.doc = doc
	return b
}

// Ingredients declares this recipe's upstream dependencies, exactly one
// of which must also be passed to Mapped.
func (b *ForeachBuilder) Ingredients(ingredients ...Node) *ForeachBuilder {
	b.f.ingredients = ingredients
	return b
}

// Mapped designates which ingredient is the mapped input (spec.md §3).
// n must be one of the nodes passed to Ingredients.
func (b *ForeachBuilder) Mapped(n Node) *ForeachBuilder {
	b.mapped = n
	return b
}

// Fn sets the per-element bound function.
func (b *ForeachBuilder) Fn(fn ElementFunc) *ForeachBuilder {
	b.f.elementFn = fn
	b.f.boundFn = fn
	return b
}

// Captures declares closed-over values participating in the bound-
// function checksum, as Builder.Captures does for a plain Recipe.
func (b *ForeachBuilder) Captures(captures ...value.Value) *ForeachBuilder {
	b.f.captures = captures
	return b
}

// Defaults declares default argument values, as Builder.Defaults does.
func (b *ForeachBuilder) Defaults(defaults ...value.Value) *ForeachBuilder {
	b.f.defaults = defaults
	return b
}

// Cleanliness installs a custom predicate over the current aggregate
// output.
func (b *ForeachBuilder) Cleanliness(fn func(value.Value) bool) *ForeachBuilder {
	b.f.cleanliness = fn
	return b
}

// Transient marks the aggregate output (and all per-element outputs) as
// never persisted.
func (b *ForeachBuilder) Transient() *ForeachBuilder {
	b.f.transient = true
	return b
}

// NoCache disables disk persistence for this recipe specifically.
func (b *ForeachBuilder) NoCache() *ForeachBuilder {
	b.f.cacheEnabled = false
	return b
}

// Build validates and returns the constructed ForeachRecipe.
func (b *ForeachBuilder) Build() (*ForeachRecipe, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.f.elementFn == nil {
		return nil, ErrNilBoundFunction
	}
	if b.mapped == nil {
		return nil, fmt.Errorf("recipe %q: %w", b.f.name, ErrForeachMappedInputKind)
	}
	for i, ing := range b.f.ingredients {
		if ing == b.mapped {
			b.f.mappedIndex = i
			break
		}
	}
	if b.f.mappedIndex < 0 {
		return nil, fmt.Errorf("recipe %q: mapped ingredient is not in Ingredients()", b.f.name)
	}
	return b.f, nil
}

// Name returns the recipe's stable identifier.
func (f *ForeachRecipe) Name() string { return f.name }

// Doc returns the recipe's documentation string.
func (f *ForeachRecipe) Doc() string { return f.doc }

// Ingredients returns the recipe's upstream dependencies.
func (f *ForeachRecipe) Ingredients() []Node { return f.ingredients }

// Transient reports whether this recipe is transient, i.e. its outputs
// are never persisted.
func (f *ForeachRecipe) Transient() bool { return f.transient }

// MappedIngredient returns the ingredient designated as the mapped
// input.
func (f *ForeachRecipe) MappedIngredient() Node { return f.ingredients[f.mappedIndex] }

func (f *ForeachRecipe) bind(hasher *checksum.Hasher, store *cachestore.Store) error {
	f.hasher = hasher
	if f.cacheEnabled && !f.transient && store != nil {
		dir, err := store.Dir(f.name)
		if err != nil {
			return err
		}
		f.dir = dir
	}
	return nil
}

func (f *ForeachRecipe) ensureLoaded() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return nil
	}
	f.loaded = true
	if f.transient || f.dir == nil {
		return nil
	}
	rec, ok, err := f.dir.LoadRecord()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	f.record = rec
	return nil
}

func (f *ForeachRecipe) funcChecksum() (string, error) {
	return f.hasher.Func(checksum.BoundFunc{
		Fn:       f.boundFn,
		Captures: f.captures,
		Defaults: f.defaults,
	})
}

// PlanItem describes one mapped-input element's current evaluation
// state.
type PlanItem struct {
	Key           value.Value
	KeyChecksum   string
	Input         value.Value
	InputChecksum string
	// Reused is true when a previously recorded element's input
	// checksum still matches, so ReusedOutput can be used directly
	// instead of invoking ElementFunc.
	Reused       bool
	ReusedOutput value.Value
}

// Plan is the current partition of a ForeachRecipe's mapped input into
// reusable and to-be-evaluated elements (spec.md §4.6 step 3).
type Plan struct {
	Kind            string
	Items           []PlanItem
	KindChanged     bool
	IngredientDirty bool
}

// NeedsWork reports whether any item in the plan requires invocation.
func (p *Plan) NeedsWork() bool {
	for _, it := range p.Items {
		if !it.Reused {
			return true
		}
	}
	return false
}

// Plan computes the current element partition against this recipe's
// recorded state (spec.md §4.4's ForeachRecipe status-override logic,
// shared here with the scheduler so both status reporting and
// invocation planning use one partition computation).
func (f *ForeachRecipe) Plan(_ context.Context) (*Plan, error) {
	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}

	mapped, ok, err := ingredientValue(f.ingredients[f.mappedIndex])
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Plan{IngredientDirty: true}, nil
	}

	var keys, elems []value.Value
	var kind string
	switch mapped.Kind() {
	case value.KindSequence:
		kind = mappedInputKindSequence
		seq, _ := mapped.AsSeq()
		for i, v := range seq {
			keys = append(keys, value.Int(int64(i)))
			elems = append(elems, v)
		}
	case value.KindMapping:
		kind = mappedInputKindMapping
		entries, _ := mapped.AsMap()
		for _, e := range entries {
			keys = append(keys, e.Key)
			elems = append(elems, e.Val)
		}
	default:
		return nil, ErrForeachMappedInputKind
	}

	kindChanged := f.record != nil && f.record.MappedInputKind != "" && f.record.MappedInputKind != kind

	oldByKey := map[string]cachestore.ElementRecord{}
	if f.record != nil && !kindChanged {
		for _, er := range f.record.Elements {
			oldByKey[er.KeyChecksum] = er
		}
	}

	plan := &Plan{Kind: kind, KindChanged: kindChanged}
	for i := range keys {
		keyChecksum, err := f.hasher.Value(keys[i])
		if err != nil {
			return nil, err
		}
		inputChecksum, err := f.hasher.Value(elems[i])
		if err != nil {
			return nil, err
		}
		item := PlanItem{Key: keys[i], KeyChecksum: keyChecksum, Input: elems[i], InputChecksum: inputChecksum}
		if old, ok := oldByKey[keyChecksum]; ok && old.InputChecksum == inputChecksum {
			handle := serialize.Decode(old.Output, f.blobSource())
			outVal, err := handle.Materialize()
			if err == nil {
				item.Reused = true
				item.ReusedOutput = outVal
			}
		}
		plan.Items = append(plan.Items, item)
	}
	return plan, nil
}

// memStore lazily creates and returns this ForeachRecipe's in-process
// blob store, reusing the same instance across every call so a blob
// written through it stays readable for this recipe's lifetime.
func (f *ForeachRecipe) memStore() *memBlobStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mem == nil {
		f.mem = newMemBlobStore()
	}
	return f.mem
}

func (f *ForeachRecipe) blobSource() serialize.BlobSource {
	if f.dir != nil {
		return f.dir
	}
	return f.memStore()
}

func (f *ForeachRecipe) blobSink() serialize.BlobSink {
	if f.dir != nil {
		return f.dir
	}
	return f.memStore()
}

// computeStatus implements statusEvaluator for ForeachRecipe.
func (f *ForeachRecipe) computeStatus(ctx context.Context, ingredientStatuses StatusMap) (Status, error) {
	if err := f.ensureLoaded(); err != nil {
		return 0, err
	}
	if f.transient || f.record == nil {
		return StatusNotEvaluatedYet, nil
	}

	var candidates []Status

	otherDirty := false
	for i, ing := range f.ingredients {
		if i == f.mappedIndex {
			continue
		}
		if ingredientStatuses[ing.Name()].Dirty() {
			otherDirty = true
		}
		if sum, ok := ingredientChecksum(ing); !ok || (i < len(f.record.IngredientChecksums) && sum != f.record.IngredientChecksums[i]) {
			otherDirty = true
		}
	}

	plan, err := f.Plan(ctx)
	if err != nil {
		return 0, err
	}

	inputsChanged := otherDirty || plan.IngredientDirty || plan.KindChanged || ingredientStatuses[f.ingredients[f.mappedIndex].Name()].Dirty() || plan.NeedsWork() || len(plan.Items) != len(f.record.Elements)
	if inputsChanged {
		candidates = append(candidates, StatusInputsChanged)
	}

	funcSum, err := f.funcChecksum()
	if err != nil {
		return 0, err
	}
	if funcSum != f.record.FuncChecksum {
		candidates = append(candidates, StatusBoundFunctionChanged)
	}

	valid, err := f.outputsStillValid()
	if err != nil {
		return 0, err
	}
	if !valid {
		candidates = append(candidates, StatusOutputsInvalid)
	}

	if f.cleanliness != nil {
		agg, ok, err := f.currentAggregateValue()
		if err != nil {
			return 0, err
		}
		if ok && !f.cleanliness(agg) {
			candidates = append(candidates, StatusCustomDirty)
		}
	}

	return highestPriority(candidates...), nil
}

func (f *ForeachRecipe) outputsStillValid() (bool, error) {
	if f.record.Output == nil || len(f.record.OutputChecksums) != 1 {
		return f.record.Output == nil && len(f.record.Elements) == 0, nil
	}
	handle := serialize.Decode(f.record.Output, f.blobSource())
	sum, err := f.hasher.HandleChecksum(handle)
	if err != nil {
		return false, nil
	}
	return sum == f.record.OutputChecksums[0], nil
}

func (f *ForeachRecipe) currentAggregateValue() (value.Value, bool, error) {
	if f.record == nil || f.record.Output == nil {
		return value.Value{}, false, nil
	}
	handle := serialize.Decode(f.record.Output, f.blobSource())
	v, err := handle.Materialize()
	if err != nil {
		return value.Value{}, false, err
	}
	return v, true, nil
}

// currentChecksum implements checksumProvider.
func (f *ForeachRecipe) currentChecksum() (string, bool) {
	if err := f.ensureLoaded(); err != nil || f.record == nil || len(f.record.OutputChecksums) != 1 {
		return "", false
	}
	return f.record.OutputChecksums[0], true
}

// currentValue implements valueProvider.
func (f *ForeachRecipe) currentValue() (value.Value, bool, error) {
	if err := f.ensureLoaded(); err != nil {
		return value.Value{}, false, err
	}
	return f.currentAggregateValue()
}

// Outputs returns the recipe's current aggregate output, if any has
// been recorded.
func (f *ForeachRecipe) Outputs(_ context.Context) (value.Value, bool, error) {
	if err := f.ensureLoaded(); err != nil {
		return value.Value{}, false, err
	}
	return f.currentAggregateValue()
}

// Status reports this recipe's dirtiness via a fresh Evaluate call.
func (f *ForeachRecipe) Status(ctx context.Context) (Status, error) {
	statuses, err := Evaluate(ctx, f)
	if err != nil {
		return 0, err
	}
	return statuses[f.name], nil
}

// InvokeElement calls ElementFunc for one mapped-input element.
func (f *ForeachRecipe) InvokeElement(ctx context.Context, key, input value.Value) (value.Value, error) {
	out, err := f.elementFn(ctx, key, input)
	if err != nil {
		return value.Value{}, &UserCodeError{Recipe: f.name, Err: err}
	}
	return out, nil
}

// OtherIngredientValues returns the current wrapped value of every
// ingredient except the mapped one, in ingredient order (the mapped
// ingredient's per-element values are supplied directly by Plan/
// InvokeElement instead).
func (f *ForeachRecipe) OtherIngredientValues(_ context.Context) (map[int]value.Value, error) {
	out := map[int]value.Value{}
	for i, ing := range f.ingredients {
		if i == f.mappedIndex {
			continue
		}
		v, ok, err := ingredientValue(ing)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("recipe %q: ingredient %q has no current value", f.name, ing.Name())
		}
		out[i] = v
	}
	return out, nil
}

// Gather assembles and commits the current aggregate output from plan,
// using computed[i] for plan.Items[i] not marked Reused. Items with
// neither a reused output nor a computed entry are omitted from the
// resulting aggregate and record (spec.md §4.6: "partial foreach
// progress is persisted ... a gather step that folds completed
// elements even on abort"). ingredientChecksums is the current checksum
// of every non-mapped ingredient, aligned to f.Ingredients().
func (f *ForeachRecipe) Gather(plan *Plan, computed map[int]value.Value, ingredientChecksums []string) (value.Value, error) {
	sink := f.blobSink()

	f.mu.Lock()
	defer f.mu.Unlock()

	var elements []cachestore.ElementRecord
	var keys, vals []value.Value
	for i, item := range plan.Items {
		out, ok := item.ReusedOutput, item.Reused
		if !ok {
			if v, has := computed[i]; has {
				out, ok = v, true
			}
		}
		if !ok {
			continue
		}
		outChecksum, err := f.hasher.Value(out)
		if err != nil {
			return value.Value{}, err
		}
		doc, err := serialize.Encode(out, sink, f.hasher.AllowPickling())
		if err != nil {
			return value.Value{}, err
		}
		elements = append(elements, cachestore.ElementRecord{
			KeyChecksum:    item.KeyChecksum,
			InputChecksum:  item.InputChecksum,
			OutputChecksum: outChecksum,
			Output:         doc,
		})
		keys = append(keys, item.Key)
		vals = append(vals, out)
	}

	var aggregate value.Value
	switch plan.Kind {
	case mappedInputKindMapping:
		entries := make([]value.MapEntry, len(keys))
		for i := range keys {
			entries[i] = value.MapEntry{Key: keys[i], Val: vals[i]}
		}
		aggregate = value.Map(entries...)
	default:
		aggregate = value.Seq(vals...)
	}

	funcSum, err := f.funcChecksum()
	if err != nil {
		return value.Value{}, err
	}
	aggChecksum, err := f.hasher.Value(aggregate)
	if err != nil {
		return value.Value{}, err
	}
	aggDoc, err := serialize.Encode(aggregate, sink, f.hasher.AllowPickling())
	if err != nil {
		return value.Value{}, err
	}

	rec := &cachestore.Record{
		IngredientChecksums: append([]string(nil), ingredientChecksums...),
		FuncChecksum:        funcSum,
		OutputChecksums:     []string{aggChecksum},
		Output:              aggDoc,
		Elements:            elements,
		MappedInputKind:     plan.Kind,
	}

	if f.dir != nil {
		if err := f.dir.StoreRecord(rec); err != nil {
			return value.Value{}, err
		}
	}

	f.record = rec
	f.loaded = true
	return aggregate, nil
}
