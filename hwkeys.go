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
	"crypto/sha256"
	"encoding/base64"
	"sync"
)

// PlaceholderKey stands in for a key whose private material is being
// created out-of-band in the hardware keystore. The surrounding protocol
// installs a list of these before driving key creation through the normal
// software path; when created key material matches a placeholder's
// fingerprint, the blob records the hardware reference instead of the
// material.
//
// SPKIFingerprint is the standard-encoding base64 of the SHA-256 digest of
// the key's SubjectPublicKeyInfo, as produced by SPKIFingerprint. Matching
// is an exact string comparison - callers are expected to supply canonical
// base64 with no whitespace or padding variations.
type PlaceholderKey struct {
	SPKIFingerprint string
	Label           string
	ID              string
}

// SPKIFingerprint computes the placeholder fingerprint of a DER-encoded
// SubjectPublicKeyInfo.
func SPKIFingerprint(spkiDER []byte) string {
	digest := sha256.Sum256(spkiDER)
	return base64.StdEncoding.EncodeToString(digest[:])
}

// placeholderPool holds the installed placeholder records. Consumption is
// check-then-remove, so the pool is mutex-guarded - two concurrent key
// creations must not consume the same placeholder.
type placeholderPool struct {
	mu   sync.Mutex
	keys []PlaceholderKey
}

// install replaces the pool wholesale. Unconsumed entries from a previous
// install are discarded.
func (p *placeholderPool) install(keys []PlaceholderKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = make([]PlaceholderKey, len(keys))
	copy(p.keys, keys)
}

// findAndConsume scans the pool for an entry whose fingerprint matches the
// supplied key material and removes it. A placeholder is consumed at most
// once: a second call with the same material returns no match, and the
// caller must then treat the key as an ordinary software key.
func (p *placeholderPool) findAndConsume(material []byte) (PlaceholderKey, bool) {
	fp := SPKIFingerprint(material)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, key := range p.keys {
		if key.SPKIFingerprint == fp {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			return key, true
		}
	}
	return PlaceholderKey{}, false
}
