// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package recipe

// Status reports why a node does or doesn't need to be re-invoked
// before its outputs can be trusted.
type Status uint8

const (
	// StatusOk means the recorded outputs are still valid.
	StatusOk Status = iota
	// StatusNotEvaluatedYet means the node has no cache record at all.
	StatusNotEvaluatedYet
	// StatusCustomDirty means the installed cleanliness predicate
	// rejected the cached outputs.
	StatusCustomDirty
	// StatusInputsChanged means an ingredient's output checksum (or,
	// for a ForeachRecipe, the mapped input) no longer matches what
	// was recorded.
	StatusInputsChanged
	// StatusBoundFunctionChanged means the recipe's bound-function
	// checksum no longer matches what was recorded.
	StatusBoundFunctionChanged
	// StatusOutputsInvalid means a recorded output's re-checksummed
	// persisted value no longer matches what was recorded (e.g. an
	// externally referenced file changed on disk).
	StatusOutputsInvalid
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusNotEvaluatedYet:
		return "NotEvaluatedYet"
	case StatusCustomDirty:
		return "CustomDirty"
	case StatusInputsChanged:
		return "InputsChanged"
	case StatusBoundFunctionChanged:
		return "BoundFunctionChanged"
	case StatusOutputsInvalid:
		return "OutputsInvalid"
	default:
		return "Unknown"
	}
}

// Dirty reports whether s requires re-invocation (anything but Ok).
func (s Status) Dirty() bool { return s != StatusOk }

// statusPriority encodes spec.md §4.4's tie-break rule: when multiple
// causes hold simultaneously for one node, the highest-priority cause
// is the one reported. Declared separately from the iota order above
// so the two can't silently drift apart.
var statusPriority = map[Status]int{
	StatusOk:                   0,
	StatusNotEvaluatedYet:      1,
	StatusCustomDirty:          2,
	StatusInputsChanged:        3,
	StatusBoundFunctionChanged: 4,
	StatusOutputsInvalid:       5,
}

// highestPriority returns the highest-priority status among candidates,
// or StatusOk if candidates is empty.
func highestPriority(candidates ...Status) Status {
	best := StatusOk
	for _, c := range candidates {
		if statusPriority[c] > statusPriority[best] {
			best = c
		}
	}
	return best
}
