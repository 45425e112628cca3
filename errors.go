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

package keymint

import (
	"errors"
)

var (
	// ErrOutputNull is returned when a caller omits a required output
	// argument. This is always a caller bug and is never retried.
	ErrOutputNull = errors.New("required output argument is nil")

	// ErrInvalidKeyBlob is returned when a key blob cannot be decoded.
	// The same error is returned for truncated input, authentication
	// failure, a hidden authorization set mismatch and malformed
	// plaintext, so that a caller cannot distinguish which check failed.
	ErrInvalidKeyBlob = errors.New("invalid key blob")

	// ErrInvalidArgument is returned when an operation is invoked with
	// arguments that can never succeed, such as attempting to upgrade a
	// key blob created on a newer system.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknown is returned when an underlying primitive fails - the
	// random source, the MAC implementation, or the external keystore
	// that supplies the blob encryption key. The failed operation is not
	// retried internally.
	ErrUnknown = errors.New("unknown error")

	// ErrKeyRequiresUpgrade is reported by the surrounding protocol
	// layer when a key blob must be re-encoded before use. It is defined
	// here so that both sides of that boundary agree on the value; this
	// package itself signals the condition through the result of
	// Context.UpgradeKeyBlob.
	ErrKeyRequiresUpgrade = errors.New("key blob requires upgrade")
)

// invalidKeyBlobError wraps a diagnostic reason behind ErrInvalidKeyBlob.
// The reason never contains key material, ciphertext or hidden
// authorization values.
type invalidKeyBlobError struct {
	reason string
}

func (e *invalidKeyBlobError) Error() string {
	return "invalid key blob: " + e.reason
}

func (e *invalidKeyBlobError) Unwrap() error {
	return ErrInvalidKeyBlob
}
