// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"encoding/binary"

	"github.com/mitchellh/hashstructure/v2"
)

// pickleFallback produces stable bytes for an opaque Go value that
// implements no value.Codec, via reflection over its exported fields.
// This is the AllowPickling escape hatch spec.md §4.1 describes for
// opaque values with no native encoding: a best-effort structural hash
// rather than a portable byte encoding. These bytes only feed the
// checksum; persisting such a value as a cache blob is done separately
// by package serialize, through encoding/gob.
func pickleFallback(v any) ([]byte, error) {
	sum, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, sum)
	return buf, nil
}
