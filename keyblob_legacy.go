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

	"github.com/canonical/go-tpm2/mu"
)

// The legacy blob format predates AEAD binding. It is an integrity-assured
// blob: a marshalled payload followed by a truncated HMAC whose key is
// derived from the hidden authorization set, so presenting the wrong
// hidden set still fails the tag check. This format is only ever read, for
// compatibility with keys created before the current format existed.

const (
	legacyBlobHeader  uint32 = 0x924b4d31
	legacyBlobVersion uint32 = 0

	legacyTagSize = 8
)

var legacyTagKeyLabel = []byte("integrity-assured key blob")

// legacyKeyBlob is the marshalled payload of a legacy blob. The
// authorization sets are stored in their canonical serialized form.
type legacyKeyBlob struct {
	KeyMaterial []byte
	HwEnforced  []byte
	SwEnforced  []byte
}

// legacyBlobTag computes the truncated integrity tag over body. The tag
// key is bound to the hidden authorization set rather than to any
// per-process secret so that legacy blobs remain readable across process
// restarts.
func legacyBlobTag(hidden AuthorizationSet, body []byte) ([]byte, error) {
	aad, err := hidden.Serialize()
	if err != nil {
		return nil, err
	}

	kh := hmac.New(sha256.New, legacyTagKeyLabel)
	kh.Write(aad)
	key := kh.Sum(nil)

	h := hmac.New(sha256.New, key)
	h.Write(body)
	return h.Sum(nil)[:legacyTagSize], nil
}

func (c *Context) decodeLegacyKeyBlob(blob KeyBlob, hidden AuthorizationSet) (*KeyData, error) {
	if len(blob) <= legacyTagSize {
		return nil, &invalidKeyBlobError{"too short"}
	}

	body := blob[:len(blob)-legacyTagSize]
	tag := blob[len(blob)-legacyTagSize:]

	expected, err := legacyBlobTag(hidden, body)
	if err != nil {
		return nil, ErrInvalidKeyBlob
	}
	if !hmac.Equal(tag, expected) {
		return nil, ErrInvalidKeyBlob
	}

	var header uint32
	var version uint32
	var d legacyKeyBlob
	if _, err := mu.UnmarshalFromBytes(body, &header, &version, &d); err != nil {
		return nil, &invalidKeyBlobError{"malformed legacy key data"}
	}
	if header != legacyBlobHeader {
		return nil, &invalidKeyBlobError{"unexpected legacy header"}
	}
	if version != legacyBlobVersion {
		return nil, &invalidKeyBlobError{"unexpected legacy version"}
	}
	if len(d.KeyMaterial) == 0 {
		return nil, &invalidKeyBlobError{"legacy key data has no key material"}
	}

	hwEnforced, err := parseAuthorizationSetBytes(d.HwEnforced)
	if err != nil {
		return nil, &invalidKeyBlobError{"malformed legacy key data"}
	}
	swEnforced, err := parseAuthorizationSetBytes(d.SwEnforced)
	if err != nil {
		return nil, &invalidKeyBlobError{"malformed legacy key data"}
	}

	return &KeyData{
		Material:   d.KeyMaterial,
		HwEnforced: hwEnforced,
		SwEnforced: swEnforced,
	}, nil
}

// marshalLegacyKeyBlob produces a legacy-format blob. Production code
// never writes this format - it exists so that tests can construct
// fixtures for the compatibility read path.
func marshalLegacyKeyBlob(data *KeyData, hidden AuthorizationSet) (KeyBlob, error) {
	hwEnforced, err := data.HwEnforced.Serialize()
	if err != nil {
		return nil, err
	}
	swEnforced, err := data.SwEnforced.Serialize()
	if err != nil {
		return nil, err
	}

	body, err := mu.MarshalToBytes(legacyBlobHeader, legacyBlobVersion, &legacyKeyBlob{
		KeyMaterial: data.Material,
		HwEnforced:  hwEnforced,
		SwEnforced:  swEnforced,
	})
	if err != nil {
		return nil, err
	}

	tag, err := legacyBlobTag(hidden, body)
	if err != nil {
		return nil, err
	}

	return KeyBlob(append(body, tag...)), nil
}
