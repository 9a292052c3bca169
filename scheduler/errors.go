// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package scheduler

import "errors"

// Sentinel errors for the scheduler package.
var (
	// ErrNilContext is returned when Brew is called with a nil context.
	ErrNilContext = errors.New("scheduler: context must not be nil")

	// ErrNilTarget is returned when Brew is called with a nil target node.
	ErrNilTarget = errors.New("scheduler: target must not be nil")

	// ErrNoProgress is returned when dirty nodes remain but none of them
	// are ready to run — a dependency cycle, since a well-formed DAG
	// always has at least one ready node while work remains.
	ErrNoProgress = errors.New("scheduler: no ready nodes but dirty nodes remain (dependency cycle?)")
)
