// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package scheduler implements spec.md §5: brewing a recipe graph. It
// knows nothing about checksums or caching (that's package recipe) —
// only how to turn a StatusMap into a dependency-ordered, concurrency-
// bounded invocation plan, and how to invoke each dirty node kind.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/MathiasStokholm/alkymi/metrics"
	"github.com/MathiasStokholm/alkymi/recipe"
	"github.com/MathiasStokholm/alkymi/value"
)

var tracer = otel.Tracer("alkymi.scheduler")

// Scheduler brews a recipe graph: it evaluates every node's Status, then
// invokes the dirty ones in dependency order, at most jobs at a time
// (spec.md §5, "every recipe exposes brew(jobs)").
type Scheduler struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Scheduler. A nil logger defaults to slog.Default(); a
// nil metrics is safe since every Metrics method tolerates a nil
// receiver.
func New(logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, metrics: m}
}

// Brew evaluates target's transitive ingredient closure and invokes every
// dirty node, at most jobs concurrently, honoring dependency order. The
// first node to fail cancels remaining in-flight work and Brew returns
// that error; a ForeachRecipe still persists whatever elements it
// completed before the failure (spec.md §4.6, §8 property 8).
func (s *Scheduler) Brew(ctx context.Context, target recipe.Node, jobs int) error {
	if ctx == nil {
		return ErrNilContext
	}
	if target == nil {
		return ErrNilTarget
	}
	if jobs < 1 {
		jobs = 1
	}

	sessionID := uuid.NewString()[:12] // 11 hex digits, 44 bits of entropy, enough for log correlation
	ctx, span := tracer.Start(ctx, "alkymi.Brew", trace.WithAttributes(
		attribute.String("alkymi.target", target.Name()),
		attribute.String("alkymi.session_id", sessionID),
		attribute.Int("alkymi.jobs", jobs),
	))
	defer span.End()

	start := time.Now()
	s.logger.Info("brew started",
		slog.String("target", target.Name()),
		slog.String("session_id", sessionID),
		slog.Int("jobs", jobs),
	)

	statuses, err := recipe.Evaluate(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	all := collectNodes(target)
	pending := make(map[string]recipe.Node, len(all))
	done := make(map[string]bool, len(all))
	for name, node := range all {
		dirty := statuses[name].Dirty()
		s.metrics.ObserveStatus(name, dirty)
		if dirty {
			pending[name] = node
		} else {
			done[name] = true
		}
	}
	dirtyCount := len(pending)

	// sem bounds bound-function invocations — both whole-Recipe calls and
	// individual ForeachRecipe elements — to the jobs budget (spec.md
	// §4.6/§5). It is not used to bound the per-tier dispatch goroutines
	// themselves: a ForeachRecipe's dispatch goroutine fans further out
	// into one goroutine per element, each separately contending for a
	// permit, so "jobs" caps concurrent user-code execution regardless
	// of how many nodes or elements are ready at once.
	sem := semaphore.NewWeighted(int64(jobs))
	brewCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var firstErr error

	for len(pending) > 0 {
		ready := readyNodes(pending, done)
		if len(ready) == 0 {
			firstErr = ErrNoProgress
			break
		}

		var wg sync.WaitGroup
		for _, node := range ready {
			wg.Add(1)
			go func(node recipe.Node) {
				defer wg.Done()

				nodeStart := time.Now()
				nodeErr := s.executeNode(brewCtx, node, sessionID, sem)
				s.metrics.ObserveNodeDuration(node.Name(), time.Since(nodeStart).Seconds())

				mu.Lock()
				defer mu.Unlock()
				if nodeErr != nil {
					if firstErr == nil {
						firstErr = nodeErr
						cancel()
					}
					return
				}
				done[node.Name()] = true
				delete(pending, node.Name())
			}(node)
		}
		wg.Wait()

		if firstErr != nil {
			break
		}
	}

	duration := time.Since(start)
	s.metrics.ObserveBrewDuration(duration.Seconds())

	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, firstErr.Error())
		s.logger.Error("brew failed",
			slog.String("session_id", sessionID),
			slog.Duration("duration", duration),
			slog.String("error", firstErr.Error()),
		)
		return firstErr
	}

	span.SetStatus(codes.Ok, "")
	s.logger.Info("brew completed",
		slog.String("session_id", sessionID),
		slog.Duration("duration", duration),
		slog.Int("nodes_evaluated", dirtyCount),
	)
	return nil
}

// collectNodes walks target's transitive ingredient closure, deduplicated
// by name so a diamond-shaped DAG yields each shared node once.
func collectNodes(target recipe.Node) map[string]recipe.Node {
	all := map[string]recipe.Node{}
	var visit func(n recipe.Node)
	visit = func(n recipe.Node) {
		if _, ok := all[n.Name()]; ok {
			return
		}
		all[n.Name()] = n
		for _, ing := range n.Ingredients() {
			visit(ing)
		}
	}
	visit(target)
	return all
}

// readyNodes returns every pending node whose ingredients are all done,
// sorted by name for deterministic dispatch order.
func readyNodes(pending map[string]recipe.Node, done map[string]bool) []recipe.Node {
	var ready []recipe.Node
	for _, node := range pending {
		depsDone := true
		for _, ing := range node.Ingredients() {
			if !done[ing.Name()] {
				depsDone = false
				break
			}
		}
		if depsDone {
			ready = append(ready, node)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Name() < ready[j].Name() })
	return ready
}

// executeNode invokes a single dirty node, dispatching on its concrete
// kind (spec.md §3's closed set of Recipe/ForeachRecipe/Arg).
func (s *Scheduler) executeNode(ctx context.Context, node recipe.Node, sessionID string, sem *semaphore.Weighted) error {
	ctx, span := tracer.Start(ctx, node.Name(), trace.WithAttributes(
		attribute.String("alkymi.node", node.Name()),
		attribute.String("alkymi.session_id", sessionID),
	))
	defer span.End()

	s.logger.Debug("node starting",
		slog.String("node", node.Name()),
		slog.String("session_id", sessionID),
	)

	start := time.Now()
	var err error
	switch n := node.(type) {
	case *recipe.Recipe:
		err = s.executeRecipe(ctx, n, sem)
	case *recipe.ForeachRecipe:
		err = s.executeForeach(ctx, n, sem)
	case *recipe.Arg:
		// An Arg only ever reaches here if it's dirty, i.e. never Set —
		// there is nothing to invoke, only the caller's mistake to
		// surface.
		_, err = n.Value()
	default:
		err = fmt.Errorf("scheduler: node %q has unrecognized type %T", node.Name(), node)
	}
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("node failed",
			slog.String("node", node.Name()),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Debug("node completed",
		slog.String("node", node.Name()),
		slog.Duration("duration", duration),
	)
	return nil
}

// executeRecipe gathers current ingredient values, invokes the bound
// function under a semaphore permit, and commits the result.
func (s *Scheduler) executeRecipe(ctx context.Context, r *recipe.Recipe, sem *semaphore.Weighted) error {
	ingredientChecksums, err := recipe.IngredientChecksums(r.Ingredients())
	if err != nil {
		return err
	}
	inputs, err := r.IngredientValues(ctx)
	if err != nil {
		return err
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	outputs, invokeErr := r.Invoke(ctx, inputs)
	sem.Release(1)
	if invokeErr != nil {
		return invokeErr
	}
	return r.Commit(ingredientChecksums, outputs)
}

// executeForeach plans the mapped ingredient's element partition and
// invokes ElementFunc for every element not already reusable, one
// subtask per element (spec.md §4.6 step 3), each separately contending
// for a semaphore permit so the jobs budget is shared across every ready
// node's elements, not just this one's. Whatever elements complete
// before the first failure are still folded into the gather step (spec.md
// §4.6, §8 property 8): Gather always runs over whatever computed holds,
// regardless of whether an element failed.
func (s *Scheduler) executeForeach(ctx context.Context, f *recipe.ForeachRecipe, sem *semaphore.Weighted) error {
	plan, err := f.Plan(ctx)
	if err != nil {
		return err
	}

	elemCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var firstErr error
	computed := map[int]value.Value{}

	var wg sync.WaitGroup
	for i, item := range plan.Items {
		if item.Reused {
			continue
		}
		if err := sem.Acquire(elemCtx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(i int, item recipe.PlanItem) {
			defer wg.Done()
			defer sem.Release(1)

			out, err := f.InvokeElement(elemCtx, item.Key, item.Input)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			computed[i] = out
		}(i, item)
	}
	wg.Wait()

	ingredientChecksums, checksumErr := recipe.IngredientChecksums(f.Ingredients())
	if checksumErr != nil {
		if firstErr == nil {
			firstErr = checksumErr
		}
		return firstErr
	}
	if _, gatherErr := f.Gather(plan, computed, ingredientChecksums); gatherErr != nil && firstErr == nil {
		firstErr = gatherErr
	}
	return firstErr
}
