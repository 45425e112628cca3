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

package testutil

import (
	"fmt"
	"io"

	drbg "github.com/canonical/go-sp800.90a-drbg"
)

// NewSeededRand returns a deterministic reader suitable for standing in
// for a random source in tests. The same nonce yields the same byte
// stream.
func NewSeededRand(nonce []byte) io.Reader {
	rng, err := drbg.NewCTRWithExternalEntropy(
		32,
		[]byte{0x8e, 0x2c, 0x17, 0xf4, 0x9a, 0x01, 0x6b, 0x5d, 0x33, 0x70, 0xa2, 0x4f, 0xe1, 0x58, 0x9c, 0x06,
			0xbb, 0x42, 0xd9, 0x27, 0x64, 0x0e, 0xf5, 0x81, 0x1a, 0xc8, 0x3f, 0x92, 0x55, 0x6e, 0x03, 0xd7,
		},
		nonce,
		[]byte("KEYMINT-TEST"),
		nil)
	if err != nil {
		panic(fmt.Sprintf("cannot create DRBG: %v", err))
	}
	return rng
}
