// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package config holds process-wide alkymi settings: the cache root, the
// checksum method, and whether opaque pickling is allowed (spec.md §9's
// engine-wide configuration surface).
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MathiasStokholm/alkymi/checksum"
)

// Config is alkymi's process-wide configuration. The zero Config is not
// valid; use Default or Load.
type Config struct {
	// Cache enables disk persistence of recipe outputs. When false, every
	// recipe behaves as if built with NoCache (spec.md §3).
	Cache bool `yaml:"cache"`

	// CachePath is the root directory for the on-disk cache (spec.md
	// §4.3). Ignored when Cache is false.
	CachePath string `yaml:"cache_path"`

	// FileChecksumMethod selects how a KindPath value's referenced file
	// contributes to a checksum: "content" (default) or "mtime".
	FileChecksumMethod string `yaml:"file_checksum_method"`

	// ChecksumMethod selects the hash primitive: "md5" (default) or
	// "xxhash".
	ChecksumMethod string `yaml:"checksum_method"`

	// AllowPickling enables the reflection-based fallback checksum/
	// serialization path for opaque values with no registered Codec
	// (spec.md §4.1, §7).
	AllowPickling bool `yaml:"allow_pickling"`
}

// Default returns alkymi's built-in configuration: caching enabled at
// "./.alkymi-cache", MD5 content checksums, pickling disabled.
func Default() Config {
	return Config{
		Cache:              true,
		CachePath:          ".alkymi-cache",
		FileChecksumMethod: "content",
		ChecksumMethod:     "md5",
		AllowPickling:      false,
	}
}

// Load reads a YAML configuration file at path, overlaying it onto
// Default. A missing file is not an error: Load returns the default
// configuration unchanged, the same "defaults survive a missing file"
// behavior as the teacher's loadConfigFile.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports whether c is internally consistent. Hand-written
// rather than struct-tag-driven (github.com/go-playground/validator/v10
// was considered and dropped, see DESIGN.md): five fields don't justify
// the dependency.
func (c Config) Validate() error {
	switch c.FileChecksumMethod {
	case "content", "mtime":
	default:
		return fmt.Errorf("%w: file_checksum_method %q", ErrInvalidValue, c.FileChecksumMethod)
	}
	switch c.ChecksumMethod {
	case "md5", "xxhash":
	default:
		return fmt.Errorf("%w: checksum_method %q", ErrInvalidValue, c.ChecksumMethod)
	}
	if c.Cache && c.CachePath == "" {
		return fmt.Errorf("%w: cache_path must not be empty when cache is enabled", ErrInvalidValue)
	}
	return nil
}

// HasherOptions translates c into checksum.Options.
func (c Config) HasherOptions() checksum.Options {
	opts := checksum.Options{AllowPickling: c.AllowPickling}
	if c.ChecksumMethod == "xxhash" {
		opts.Method = checksum.MethodXXHash
	}
	if c.FileChecksumMethod == "mtime" {
		opts.FileChecksumMethod = checksum.FileChecksumMtime
	}
	return opts
}

var (
	mu      sync.Mutex
	current = Default()
)

// Current returns the process-wide default Config.
func Current() Config {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// SetCurrent installs cfg as the process-wide default, for callers (e.g.
// a CLI entry point) that load configuration once at startup.
func SetCurrent(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}
