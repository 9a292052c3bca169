// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package checksum

import (
	"go/ast"
	"go/parser"
	"go/token"
	"hash"
	"os"
	"reflect"
	"runtime"

	"github.com/MathiasStokholm/alkymi/value"
)

// BoundFunc pairs a recipe's function with the information Go can't
// recover from the func value itself: the concrete values any
// closed-over variables held at bind time, and any default argument
// values the recipe's ingredients didn't supply.
//
// A dynamically typed source language can walk a closure's captured
// cell values and a function's constant pool directly; Go's runtime
// exposes neither, so a caller constructing a recipe must declare both
// explicitly. spec.md's Design Notes calls this out as an equivalent,
// not a narrowed, implementation: the checksum still changes whenever
// either set of values changes, exactly as module-level reflection
// would have detected.
type BoundFunc struct {
	// Fn is the bound function value. Must be a non-nil Go func.
	Fn any
	// Captures holds the values of variables the function closes over
	// that should participate in its checksum. Only declared captures
	// are hashed; anything not listed here is invisible to dirtiness
	// detection, matching spec.md's rule that only symbols the author
	// actually captures affect the checksum.
	Captures []value.Value
	// Defaults holds default argument values substituted for
	// ingredients the recipe's caller didn't bind.
	Defaults []value.Value
}

// funcCycleDigest is folded in whenever a BoundFunc is reached a second
// time while resolving nested captures, breaking the recursion instead
// of hashing forever.
var funcCycleDigest = []byte("alkymi:boundfunc:cycle")

// Func returns the hex-encoded checksum of bf: the literal Go source
// text of the function's signature and body (for a declaration, from its
// parameter list onward, so the name is left out), folded with its
// declared captures and defaults. Two functions with byte-identical source always checksum
// the same regardless of name or package, matching the source
// language's behavior of hashing a function's compiled code object.
func (h *Hasher) Func(bf BoundFunc) (string, error) {
	digest, err := h.digestFunc(bf, map[uintptr]bool{})
	if err != nil {
		return "", err
	}
	return hexEncode(digest), nil
}

func (h *Hasher) digestFunc(bf BoundFunc, visited map[uintptr]bool) ([]byte, error) {
	if bf.Fn == nil {
		return nil, ErrNilFunc
	}
	rv := reflect.ValueOf(bf.Fn)
	if rv.Kind() != reflect.Func {
		return nil, ErrNilFunc
	}
	pc := rv.Pointer()
	if visited[pc] {
		return funcCycleDigest, nil
	}
	visited[pc] = true

	// The runtime name functionSource also returns is deliberately not
	// folded into the digest: spec.md §4.1 defines the bound-function
	// checksum purely over source/constants/captures/defaults, so a
	// renamed or relocated function with byte-identical source still
	// checksums the same.
	src, _, err := functionSource(pc)
	if err != nil {
		return nil, err
	}

	captureDigests, err := h.foldCaptureValues(bf.Captures, visited)
	if err != nil {
		return nil, err
	}
	defaultDigests, err := h.foldCaptureValues(bf.Defaults, visited)
	if err != nil {
		return nil, err
	}

	return h.sumDigest(func(hh hash.Hash) {
		hh.Write([]byte{tagOpaque, 'F'})
		writeLenPrefixed(hh, src)
		writeUint64(hh, uint64(len(captureDigests)))
		for _, d := range captureDigests {
			writeLenPrefixed(hh, d)
		}
		writeUint64(hh, uint64(len(defaultDigests)))
		for _, d := range defaultDigests {
			writeLenPrefixed(hh, d)
		}
	}), nil
}

// foldCaptureValues digests each capture, recursing through
// digestFunc (with cycle protection) for any capture that is itself an
// opaque-wrapped BoundFunc, and falling back to the ordinary value
// digest otherwise.
func (h *Hasher) foldCaptureValues(vals []value.Value, visited map[uintptr]bool) ([][]byte, error) {
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if opq, ok := v.AsOpaque(); ok {
			if nested, ok := opq.(BoundFunc); ok {
				d, err := h.digestFunc(nested, visited)
				if err != nil {
					return nil, err
				}
				out[i] = d
				continue
			}
		}
		d, err := h.digest(v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// functionSource locates and returns the exact source bytes of the
// function whose compiled code contains pc, along with its runtime
// name. Grounded on the standard approach of pairing
// runtime.FuncForPC's reported file/line with a go/parser re-parse of
// that file to recover the enclosing declaration's full byte range,
// since runtime.Func only gives a single representative line, not a
// span.
func functionSource(pc uintptr) ([]byte, string, error) {
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return nil, "", ErrFuncSourceNotFound
	}
	file, line := rf.FileLine(pc)
	if file == "" {
		return nil, "", ErrFuncSourceNotFound
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, "", ErrFuncSourceNotFound
	}

	fset := token.NewFileSet()
	astFile, err := parser.ParseFile(fset, file, data, 0)
	if err != nil {
		return nil, "", ErrFuncSourceNotFound
	}

	var best ast.Node
	ast.Inspect(astFile, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		start := fset.Position(n.Pos())
		end := fset.Position(n.End())
		if start.Line <= line && line <= end.Line {
			switch n.(type) {
			case *ast.FuncDecl, *ast.FuncLit:
				best = n
			}
		}
		return true
	})
	if best == nil {
		return nil, "", ErrFuncSourceNotFound
	}

	startPos := best.Pos()
	if fd, ok := best.(*ast.FuncDecl); ok {
		// Start at the signature so a declaration's name (and receiver)
		// is not part of the hashed source.
		startPos = fd.Type.Params.Pos()
		if fd.Type.TypeParams != nil {
			startPos = fd.Type.TypeParams.Pos()
		}
	}
	startOff := fset.Position(startPos).Offset
	endOff := fset.Position(best.End()).Offset
	if startOff < 0 || endOff > len(data) || startOff >= endOff {
		return nil, "", ErrFuncSourceNotFound
	}
	return data[startOff:endOff], rf.Name(), nil
}
