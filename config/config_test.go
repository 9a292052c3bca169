// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MathiasStokholm/alkymi/checksum"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(missing) = %+v, want Default()", cfg)
	}
}

func TestLoad_OverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alkymi.yaml")
	contents := "cache: false\nchecksum_method: xxhash\nallow_pickling: true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache {
		t.Fatal("Cache = true, want false")
	}
	if cfg.ChecksumMethod != "xxhash" {
		t.Fatalf("ChecksumMethod = %q, want xxhash", cfg.ChecksumMethod)
	}
	if !cfg.AllowPickling {
		t.Fatal("AllowPickling = false, want true")
	}
	// Untouched fields keep their default.
	if cfg.FileChecksumMethod != "content" {
		t.Fatalf("FileChecksumMethod = %q, want content", cfg.FileChecksumMethod)
	}
}

func TestValidate_RejectsUnknownChecksumMethod(t *testing.T) {
	cfg := Default()
	cfg.ChecksumMethod = "sha3"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("got err %v, want ErrInvalidValue", err)
	}
}

func TestValidate_RejectsEmptyCachePathWhenCacheEnabled(t *testing.T) {
	cfg := Default()
	cfg.CachePath = ""
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("got err %v, want ErrInvalidValue", err)
	}
}

func TestHasherOptions_TranslatesMethod(t *testing.T) {
	cfg := Default()
	cfg.ChecksumMethod = "xxhash"
	cfg.FileChecksumMethod = "mtime"
	opts := cfg.HasherOptions()
	if opts.Method != checksum.MethodXXHash {
		t.Fatalf("Method = %v, want MethodXXHash", opts.Method)
	}
	if opts.FileChecksumMethod != checksum.FileChecksumMtime {
		t.Fatalf("FileChecksumMethod = %v, want FileChecksumMtime", opts.FileChecksumMethod)
	}
}

func TestSetCurrent_RejectsInvalidConfig(t *testing.T) {
	bad := Default()
	bad.ChecksumMethod = "bogus"
	if err := SetCurrent(bad); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("got err %v, want ErrInvalidValue", err)
	}
	// Current() must still report a valid config after a rejected SetCurrent.
	if err := Current().Validate(); err != nil {
		t.Fatalf("Current() invalid after rejected SetCurrent: %v", err)
	}
}
