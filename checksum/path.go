// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// Discriminator bytes folded into a path's digest in addition to tagPath,
// so a missing path, a directory, and an empty regular file never
// collide even though their raw content bytes might otherwise agree.
const (
	pathKindMissing byte = iota
	pathKindDir
	pathKindFileContent
	pathKindFileMtime
)

// digestPath resolves a KindPath value's target on disk and folds its
// current state into a digest. A missing path contributes a fixed
// digest rather than erroring, since "this input doesn't exist yet" is
// itself valid dirtiness information during status evaluation. No
// caller in this module treats a missing path as an error at
// serialization time either: it gets this same fixed digest.
func (h *Hasher) digestPath(path string) ([]byte, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagPath, pathKindMissing})
			writeLenPrefixed(hh, []byte(filepath.Base(path)))
		}), nil
	}
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagPath, pathKindDir})
			writeLenPrefixed(hh, []byte(path))
		}), nil
	}

	if h.opts.FileChecksumMethod == FileChecksumMtime {
		return h.sumDigest(func(hh hash.Hash) {
			hh.Write([]byte{tagPath, pathKindFileMtime})
			writeLenPrefixed(hh, []byte(filepath.Base(path)))
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(info.ModTime().UnixNano()))
			hh.Write(buf[:])
		}), nil
	}

	return h.digestFileContentAtomic(path)
}

// digestFileContentAtomic hashes a regular file's contents with
// TOCTOU protection: it stats before and after reading, and retries up
// to Options.FileMaxRetries times if the file changed mid-read.
// Grounded on manifest.SHA256Hasher.HashFileAtomic's stat-hash-stat
// loop, adapted to fold the result into this package's tagged digest
// scheme instead of returning a bare hex string.
func (h *Hasher) digestFileContentAtomic(path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= h.opts.FileMaxRetries; attempt++ {
		before, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrPathVanished, path)
			}
			return nil, err
		}

		contentDigest, err := h.digestFileContents(path)
		if err != nil {
			if os.IsNotExist(err) {
				err = ErrPathVanished
			}
			lastErr = err
			continue
		}

		after, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrPathVanished, path)
			}
			return nil, err
		}

		if before.ModTime().Equal(after.ModTime()) && before.Size() == after.Size() {
			return h.sumDigest(func(hh hash.Hash) {
				hh.Write([]byte{tagPath, pathKindFileContent})
				writeLenPrefixed(hh, []byte(filepath.Base(path)))
				writeLenPrefixed(hh, contentDigest)
			}), nil
		}
		lastErr = ErrPathVanished
	}
	if lastErr == nil {
		lastErr = ErrPathVanished
	}
	return nil, fmt.Errorf("%w: %s", lastErr, path)
}

func (h *Hasher) digestFileContents(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hh := h.newHash()
	if _, err := io.Copy(hh, f); err != nil {
		return nil, err
	}
	return hh.Sum(nil), nil
}
