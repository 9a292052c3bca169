// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package alkymi is the incremental computation engine's user-facing
// entry point (spec.md §6): it wires together checksum, cachestore,
// recipe, scheduler, and metrics into one Session a caller registers a
// recipe graph with, then queries via Status or drives via Brew.
package alkymi

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MathiasStokholm/alkymi/cachestore"
	"github.com/MathiasStokholm/alkymi/checksum"
	"github.com/MathiasStokholm/alkymi/config"
	"github.com/MathiasStokholm/alkymi/metrics"
	"github.com/MathiasStokholm/alkymi/recipe"
	"github.com/MathiasStokholm/alkymi/scheduler"
)

// Session owns one recipe graph's checksum hasher, cache store, and
// metrics, and is the thing spec.md §6's `brew`/`status` entry points
// hang off of. They live here, not on *recipe.Recipe itself, because
// package scheduler imports package recipe — a method with scheduling
// behavior can't be declared on a recipe package type without an import
// cycle.
type Session struct {
	cfg     config.Config
	hasher  *checksum.Hasher
	store   *cachestore.Store
	metrics *metrics.Metrics
	sched   *scheduler.Scheduler

	mu    sync.Mutex
	bound map[string]recipe.Node
}

// NewSession constructs a Session from cfg. A nil registerer defaults to
// prometheus.DefaultRegisterer (spec.md's metrics are process-wide by
// default); a nil logger defaults to slog.Default().
func NewSession(cfg config.Config, registerer prometheus.Registerer, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	var store *cachestore.Store
	if cfg.Cache {
		store = cachestore.New(cfg.CachePath)
	}

	m := metrics.New(registerer)
	return &Session{
		cfg:     cfg,
		hasher:  checksum.New(cfg.HasherOptions()),
		store:   store,
		metrics: m,
		sched:   scheduler.New(logger, m),
		bound:   map[string]recipe.Node{},
	}, nil
}

// Register binds every node in roots' transitive ingredient closure to
// this Session's checksum hasher and cache store. Status and Brew call
// this automatically, so direct use is only needed to pre-bind a graph
// (e.g. before calling Arg.Set so a downstream recipe's checksum
// reflects the session's configured Hasher) before the first query.
func (s *Session) Register(roots ...recipe.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, root := range roots {
		if err := s.bindClosure(root); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) bindClosure(n recipe.Node) error {
	if _, ok := s.bound[n.Name()]; ok {
		return nil
	}
	if err := recipe.Bind(n, s.hasher, s.store); err != nil {
		return err
	}
	s.bound[n.Name()] = n
	for _, ing := range n.Ingredients() {
		if err := s.bindClosure(ing); err != nil {
			return err
		}
	}
	return nil
}

// Status reports target's Status and that of every node in its
// transitive ingredient closure (spec.md §6, "status() -> status_map").
func (s *Session) Status(ctx context.Context, target recipe.Node) (recipe.StatusMap, error) {
	if err := s.Register(target); err != nil {
		return nil, err
	}
	return recipe.Evaluate(ctx, target)
}

// Brew evaluates target's transitive ingredient closure and invokes
// every dirty node, at most jobs concurrently (spec.md §6,
// "brew(jobs=1) -> outputs"). A jobs value below 1 is treated as 1.
func (s *Session) Brew(ctx context.Context, target recipe.Node, jobs int) error {
	if err := s.Register(target); err != nil {
		return err
	}
	return s.sched.Brew(ctx, target, jobs)
}

// Config returns the configuration this Session was constructed with.
func (s *Session) Config() config.Config { return s.cfg }
