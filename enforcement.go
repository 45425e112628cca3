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
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
)

const (
	sessionKeySize = 32

	// HmacTagSize is the length of tags returned by
	// EnforcementPolicy.ComputeHmac.
	HmacTagSize = sha256.Size
)

// EnforcementPolicy tags per-session authorization metadata with a keyed
// MAC. The session key is generated once at construction, lives only in
// process memory and is never persisted - the tag proves that metadata was
// produced by this process, it is not a confidentiality mechanism.
//
// The session key is written once and read-only thereafter, so a policy is
// safe for concurrent use provided construction happens before any
// concurrent call.
type EnforcementPolicy struct {
	sessionKey []byte
}

// NewEnforcementPolicy creates a policy with a fresh random session key
// read from rand.
func NewEnforcementPolicy(rand io.Reader) (*EnforcementPolicy, error) {
	key := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(rand, key); err != nil {
		return nil, fmt.Errorf("%w: cannot generate session key: %v", ErrUnknown, err)
	}
	return &EnforcementPolicy{sessionKey: key}, nil
}

// ComputeHmac returns the 32-byte HMAC-SHA256 tag of data under the
// session key.
func (p *EnforcementPolicy) ComputeHmac(data []byte) ([]byte, error) {
	h := hmac.New(sha256.New, p.sessionKey)
	if _, err := h.Write(data); err != nil {
		return nil, fmt.Errorf("%w: cannot compute tag: %v", ErrUnknown, err)
	}
	tag := h.Sum(nil)
	if len(tag) != HmacTagSize {
		return nil, fmt.Errorf("%w: tag has unexpected size (%d)", ErrUnknown, len(tag))
	}
	return tag, nil
}
