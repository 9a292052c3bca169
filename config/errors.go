// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

package config

import "errors"

// ErrInvalidValue is returned by Validate when a field holds an
// unrecognized or out-of-range value.
var ErrInvalidValue = errors.New("config: invalid value")
