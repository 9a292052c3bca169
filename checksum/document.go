// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"hash"

	"github.com/MathiasStokholm/alkymi/serialize"
)

// HandleChecksum recomputes the checksum of a previously-encoded output
// handle, for the status evaluator's OutputsInvalid check (spec.md
// §4.4: "re-checksum persisted outputs ... this is where external-file
// content hashing happens"). It materializes the handle and delegates
// to Value, so a Path leaf is re-resolved against the live filesystem
// while content-addressed blob leaves (bytes/opaque) are read back and
// rehashed unconditionally rather than special-cased as trusted —
// simpler than threading a second, blob-skipping digest path through
// package serialize for a case (external blob corruption) the cache
// layer already guards against by construction.
func (h *Hasher) HandleChecksum(handle serialize.Handle) (string, error) {
	v, err := handle.Materialize()
	if err != nil {
		return "", err
	}
	return h.Value(v)
}

// CombineChecksums folds an ordered list of already-computed hex
// checksums into one, for spec.md §3's "tuple of ingredient-output
// checksums (one per ingredient)": an ingredient contributes a single
// checksum summarizing its whole output tuple to its dependents, built
// from the ingredient's own per-output checksums rather than requiring
// every dependent to re-materialize and re-hash the ingredient's actual
// values.
func CombineChecksums(h *Hasher, checksums []string) string {
	digest := h.sumDigest(func(hh hash.Hash) {
		hh.Write([]byte{tagSequence})
		writeUint64(hh, uint64(len(checksums)))
		for _, c := range checksums {
			writeLenPrefixed(hh, []byte(c))
		}
	})
	return hexEncode(digest)
}
