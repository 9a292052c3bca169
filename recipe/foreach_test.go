// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package recipe

import (
	"context"
	"testing"

	"github.com/MathiasStokholm/alkymi/cachestore"
	"github.com/MathiasStokholm/alkymi/checksum"
	"github.com/MathiasStokholm/alkymi/value"
)

func double(ctx context.Context, key, element value.Value) (value.Value, error) {
	n, _ := element.AsInt()
	return value.Int(n * 2), nil
}

func newTestForeach(t *testing.T, name string, mapped Node, others ...Node) *ForeachRecipe {
	t.Helper()
	ingredients := append([]Node{mapped}, others...)
	f, err := NewForeachBuilder(name).Ingredients(ingredients...).Mapped(mapped).Fn(double).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hasher := checksum.New(checksum.Options{})
	store := cachestore.New(t.TempDir())
	if err := f.bind(hasher, store); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return f
}

func runForeach(t *testing.T, ctx context.Context, f *ForeachRecipe) value.Value {
	t.Helper()
	plan, err := f.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	computed := map[int]value.Value{}
	for i, item := range plan.Items {
		if item.Reused {
			continue
		}
		out, err := f.InvokeElement(ctx, item.Key, item.Input)
		if err != nil {
			t.Fatalf("InvokeElement: %v", err)
		}
		computed[i] = out
	}
	others, err := f.OtherIngredientValues(ctx)
	_ = others
	if err != nil {
		t.Fatalf("OtherIngredientValues: %v", err)
	}
	checksums := make([]string, len(f.Ingredients()))
	for i, ing := range f.Ingredients() {
		if i == f.mappedIndex {
			continue
		}
		sum, ok := ingredientChecksum(ing)
		if !ok {
			t.Fatalf("ingredientChecksum for %q not ok", ing.Name())
		}
		checksums[i] = sum
	}
	agg, err := f.Gather(plan, computed, checksums)
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	return agg
}

func TestForeachRecipe_FirstRunEvaluatesEveryElement(t *testing.T) {
	ctx := context.Background()
	hasher := checksum.New(checksum.Options{})
	mapped, err := NewArg("numbers", value.Seq(value.Int(1), value.Int(2), value.Int(3)))
	if err != nil {
		t.Fatalf("NewArg: %v", err)
	}
	mapped.bind(hasher)

	f := newTestForeach(t, "doubled", mapped)

	statuses, err := Evaluate(ctx, f)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := statuses["doubled"]; got != StatusNotEvaluatedYet {
		t.Fatalf("status = %v, want NotEvaluatedYet", got)
	}

	agg := runForeach(t, ctx, f)
	seq, ok := agg.AsSeq()
	if !ok || len(seq) != 3 {
		t.Fatalf("aggregate = %+v, want 3-element sequence", agg)
	}
	want := []int64{2, 4, 6}
	for i, v := range seq {
		n, _ := v.AsInt()
		if n != want[i] {
			t.Fatalf("element %d = %d, want %d", i, n, want[i])
		}
	}

	statuses, err = Evaluate(ctx, f)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := statuses["doubled"]; got != StatusOk {
		t.Fatalf("status after gather = %v, want Ok", got)
	}
}

func TestForeachRecipe_AppendingElementOnlyEvaluatesNewOne(t *testing.T) {
	ctx := context.Background()
	hasher := checksum.New(checksum.Options{})
	mapped, err := NewArg("numbers", value.Seq(value.Int(1), value.Int(2)))
	if err != nil {
		t.Fatalf("NewArg: %v", err)
	}
	mapped.bind(hasher)

	f := newTestForeach(t, "doubled", mapped)
	runForeach(t, ctx, f)

	mapped.Set(value.Seq(value.Int(1), value.Int(2), value.Int(3)))

	plan, err := f.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	newCount := 0
	for _, item := range plan.Items {
		if !item.Reused {
			newCount++
		}
	}
	if newCount != 1 {
		t.Fatalf("new elements = %d, want 1", newCount)
	}
}

func TestForeachRecipe_RemovingElementDropsItFromRecord(t *testing.T) {
	ctx := context.Background()
	hasher := checksum.New(checksum.Options{})
	mapped, err := NewArg("numbers", value.Seq(value.Int(1), value.Int(2), value.Int(3)))
	if err != nil {
		t.Fatalf("NewArg: %v", err)
	}
	mapped.bind(hasher)

	f := newTestForeach(t, "doubled", mapped)
	runForeach(t, ctx, f)

	mapped.Set(value.Seq(value.Int(1), value.Int(2)))
	agg := runForeach(t, ctx, f)
	seq, ok := agg.AsSeq()
	if !ok || len(seq) != 2 {
		t.Fatalf("aggregate = %+v, want 2-element sequence", agg)
	}
}

func TestForeachRecipe_PartialGatherPersistsCompletedElements(t *testing.T) {
	ctx := context.Background()
	hasher := checksum.New(checksum.Options{})
	mapped, err := NewArg("numbers", value.Seq(value.Int(1), value.Int(2), value.Int(3)))
	if err != nil {
		t.Fatalf("NewArg: %v", err)
	}
	mapped.bind(hasher)

	f := newTestForeach(t, "doubled", mapped)

	plan, err := f.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	computed := map[int]value.Value{}
	// Only complete the first element, simulating an aborted brew.
	out, err := f.InvokeElement(ctx, plan.Items[0].Key, plan.Items[0].Input)
	if err != nil {
		t.Fatalf("InvokeElement: %v", err)
	}
	computed[0] = out

	checksums := make([]string, len(f.Ingredients()))
	if _, err := f.Gather(plan, computed, checksums); err != nil {
		t.Fatalf("Gather: %v", err)
	}

	plan2, err := f.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan (2nd): %v", err)
	}
	if !plan2.Items[0].Reused {
		t.Fatal("element 0 should be reused after partial gather")
	}
	if plan2.Items[1].Reused || plan2.Items[2].Reused {
		t.Fatal("elements 1 and 2 should still need evaluation")
	}
}

// TestForeachRecipe_NoCacheBlobElementsSurviveGather guards against a
// ForeachRecipe with no disk-backed cache discarding the in-process blob
// store Gather wrote to: a KindBytes element or aggregate value is
// blob-encoded rather than inlined, so if a later read resolves against
// a fresh, empty blob store instead of the one Gather used, it fails
// with ErrBlobNotFound even though nothing was ever actually lost.
func TestForeachRecipe_NoCacheBlobElementsSurviveGather(t *testing.T) {
	ctx := context.Background()
	hasher := checksum.New(checksum.Options{})
	mapped, err := NewArg("payloads", value.Seq(value.Bytes([]byte("a")), value.Bytes([]byte("b"))))
	if err != nil {
		t.Fatalf("NewArg: %v", err)
	}
	mapped.bind(hasher)

	f, err := NewForeachBuilder("echoed").
		Ingredients(mapped).
		Mapped(mapped).
		NoCache().
		Fn(func(_ context.Context, _ value.Value, elem value.Value) (value.Value, error) {
			return elem, nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// NoCache means Gather never touches disk, but bind still wires a
	// hasher so currentChecksum/funcChecksum work.
	if err := f.bind(hasher, cachestore.New(t.TempDir())); err != nil {
		t.Fatalf("bind: %v", err)
	}

	agg := runForeach(t, ctx, f)
	seq, ok := agg.AsSeq()
	if !ok || len(seq) != 2 {
		t.Fatalf("Gather result = %+v, want a 2-element sequence", agg)
	}

	// Outputs/currentValue must resolve the same blobs Gather just wrote,
	// not a freshly constructed, empty blob store.
	out, ok, err := f.Outputs(ctx)
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}
	if !ok {
		t.Fatal("Outputs: want ok=true after Gather")
	}
	outSeq, _ := out.AsSeq()
	if len(outSeq) != 2 {
		t.Fatalf("len(outSeq) = %d, want 2", len(outSeq))
	}
	for i, want := range []string{"a", "b"} {
		got, ok := outSeq[i].AsBytes()
		if !ok || string(got) != want {
			t.Errorf("outSeq[%d] = %q, want %q", i, got, want)
		}
	}

	// A second Plan call (as the scheduler issues on every Brew) must
	// also be able to reuse these blob-backed elements.
	plan, err := f.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for i, item := range plan.Items {
		if !item.Reused {
			t.Errorf("item[%d]: want Reused, the blob should still resolve", i)
		}
	}
}
