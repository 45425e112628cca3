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

// inspect_key_blob prints non-secret framing information about a key blob
// file: its format, total size and the sizes of the framed regions. It
// never decrypts anything - it has no access to the blob encryption key
// or the hidden authorization set.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/chromeos/keymint"
)

type options struct {
	Positional struct {
		Path string `positional-arg-name:"path" description:"Key blob file to inspect"`
	} `positional-args:"true" required:"true"`
}

func run() error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		return err
	}

	data, err := os.ReadFile(opts.Positional.Path)
	if err != nil {
		return fmt.Errorf("cannot read key blob: %w", err)
	}

	blob := keymint.KeyBlob(data)
	fmt.Printf("size: %d bytes\n", len(blob))

	switch blob.Format() {
	case keymint.BlobFormatAEAD:
		fmt.Println("format: AEAD (current)")
		fmt.Printf("nonce: %d bytes\n", keymint.NonceSize)
		fmt.Printf("ciphertext+tag: %d bytes\n", len(blob)-1-keymint.NonceSize)
	case keymint.BlobFormatLegacy:
		fmt.Println("format: legacy candidate (integrity-assured)")
	default:
		fmt.Println("format: unknown (empty)")
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
