// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 The ChromiumOS Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package crossystem reads boot properties from the directory where the
// boot property store exports them, one short text file per property.
package crossystem

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromeos/keymint/internal/paths"
)

// Reader reads boot properties from a property directory.
type Reader struct {
	dir string
}

// NewReader returns a Reader over the default property directory.
func NewReader() *Reader {
	return &Reader{dir: paths.BootPropertyDir}
}

// NewReaderForDir returns a Reader over a specific property directory.
func NewReaderForDir(dir string) *Reader {
	return &Reader{dir: dir}
}

// GetBoolProperty implements keymint.BootPropertyReader. A property file
// must contain exactly one of "0", "1", "true" or "false"; anything else,
// including a missing file, is an error and the caller applies its own
// safe default.
func (r *Reader) GetBoolProperty(name string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return false, fmt.Errorf("cannot read boot property %q: %w", name, err)
	}

	switch string(bytes.TrimSpace(data)) {
	case "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	default:
		return false, fmt.Errorf("boot property %q is not a boolean", name)
	}
}
