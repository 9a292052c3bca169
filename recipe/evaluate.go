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

	"github.com/MathiasStokholm/alkymi/cachestore"
	"github.com/MathiasStokholm/alkymi/checksum"
	"github.com/MathiasStokholm/alkymi/value"
)

// StatusMap reports the current Status of every node visited by
// Evaluate, keyed by node name.
type StatusMap map[string]Status

// statusEvaluator is implemented by every concrete node kind (Recipe,
// ForeachRecipe, Arg) to compute its own status given the already-
// computed statuses of its ingredients. It is unexported: package
// scheduler and external callers only ever see the Node/Status surface.
type statusEvaluator interface {
	Node
	computeStatus(ctx context.Context, ingredientStatuses StatusMap) (Status, error)
}

// checksumProvider is implemented by every concrete node kind to report
// the combined checksum of its current output tuple, without forcing
// re-evaluation — the "current ingredient-output checksum" spec.md
// §4.4 compares against each node's recorded one.
type checksumProvider interface {
	Node
	currentChecksum() (string, bool)
}

// valueProvider is implemented by every concrete node kind to report
// its current output as the single wrapped value.Value a dependent
// recipe's Func receives for this ingredient.
type valueProvider interface {
	Node
	currentValue() (value.Value, bool, error)
}

func ingredientChecksum(n Node) (string, bool) {
	cp, ok := n.(checksumProvider)
	if !ok {
		return "", false
	}
	return cp.currentChecksum()
}

func ingredientValue(n Node) (value.Value, bool, error) {
	vp, ok := n.(valueProvider)
	if !ok {
		return value.Value{}, false, fmt.Errorf("recipe: node %q does not provide a value", n.Name())
	}
	return vp.currentValue()
}

// IngredientChecksums returns the current combined output checksum of
// each node in nodes, in order. Package scheduler calls this to build
// the IngredientChecksums a Recipe.Commit or ForeachRecipe.Gather call
// records, since the per-kind checksumProvider implementations are
// unexported. It is a scheduling defect, not a user-facing error, for
// any node here to lack a current value: the scheduler is expected to
// invoke ingredients before their dependents.
func IngredientChecksums(nodes []Node) ([]string, error) {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		sum, ok := ingredientChecksum(n)
		if !ok {
			return nil, fmt.Errorf("recipe: ingredient %q has no current checksum", n.Name())
		}
		out[i] = sum
	}
	return out, nil
}

// Bind attaches hasher (and, for a cache-backed node, a cachestore.Store
// directory) to node. It is the single exported entry point a Session
// uses to wire a freshly-built graph, since each concrete node kind's own
// bind method is unexported — callers outside this package only ever
// reach it through here, never by constructing their own checksum/cache
// wiring per node kind.
func Bind(node Node, hasher *checksum.Hasher, store *cachestore.Store) error {
	switch n := node.(type) {
	case *Recipe:
		return n.bind(hasher, store)
	case *ForeachRecipe:
		return n.bind(hasher, store)
	case *Arg:
		n.bind(hasher)
		return nil
	default:
		return fmt.Errorf("recipe: node %q has unrecognized type %T", node.Name(), node)
	}
}

// Evaluate computes the Status of target and every node in its
// transitive ingredient closure (spec.md §4.5: "a pure function over
// the DAG ... never evaluates bound functions"). Traversal is
// post-order and memoized by node name within a single call, so a
// diamond-shaped DAG inspects each shared ingredient exactly once.
func Evaluate(ctx context.Context, target Node) (StatusMap, error) {
	statuses := StatusMap{}
	if err := evaluateNode(ctx, target, statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

func evaluateNode(ctx context.Context, n Node, statuses StatusMap) error {
	if _, done := statuses[n.Name()]; done {
		return nil
	}
	for _, ing := range n.Ingredients() {
		if err := evaluateNode(ctx, ing, statuses); err != nil {
			return err
		}
	}
	se, ok := n.(statusEvaluator)
	if !ok {
		return fmt.Errorf("recipe: node %q does not implement status evaluation", n.Name())
	}
	st, err := se.computeStatus(ctx, statuses)
	if err != nil {
		return err
	}
	statuses[n.Name()] = st
	return nil
}
