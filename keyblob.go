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
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/xerrors"
)

const (
	// keyBlobVersion is the format version byte at the start of every
	// blob produced by this package. Legacy blobs predate the version
	// byte and are recognized by their framing instead.
	keyBlobVersion byte = 1

	blobNonceSize = 12
	blobTagSize   = 16
	blobKeySize   = 32
)

// NonceSize and TagSize describe the framing of current-format blobs:
// version byte, nonce, then ciphertext carrying a trailing tag.
const (
	NonceSize = blobNonceSize
	TagSize   = blobTagSize
)

// KeyStore supplies the 256-bit blob encryption key from the external
// hardware-backed keystore. The key it returns is itself hardware-wrapped
// by that collaborator - this package treats it as an opaque secret.
type KeyStore interface {
	// BlobEncryptionKey fetches the blob encryption key, creating it on
	// first use.
	BlobEncryptionKey() ([]byte, error)
}

// KeyBlob is the opaque, persisted form of a key. It is immutable once
// produced - changing the key data or its hidden-set binding requires
// producing a new blob.
type KeyBlob []byte

// BlobFormat identifies the serialization format of a blob without
// decoding it.
type BlobFormat int

const (
	BlobFormatUnknown BlobFormat = iota
	BlobFormatAEAD
	BlobFormatLegacy
)

// Format returns the probable format of this blob. A legacy result only
// means the blob does not carry the current version byte - it may still
// fail to parse.
func (b KeyBlob) Format() BlobFormat {
	switch {
	case len(b) == 0:
		return BlobFormatUnknown
	case b[0] == keyBlobVersion:
		return BlobFormatAEAD
	default:
		return BlobFormatLegacy
	}
}

// HardwareKeyRef references a key whose material lives in the external
// hardware keystore. Blobs for such keys never carry key material.
type HardwareKeyRef struct {
	Label string
	ID    string
}

// KeyData is the decoded content of a key blob: either raw key material
// or a hardware key reference, plus the two enforcement authorization
// sets. Exactly one of Material and HardwareKey is populated.
type KeyData struct {
	Material    []byte
	HardwareKey *HardwareKeyRef

	HwEnforced AuthorizationSet
	SwEnforced AuthorizationSet
}

const (
	keyDataKindSoft     = 0
	keyDataKindHardware = 1
)

func (d *KeyData) marshalASN1(b *cryptobyte.Builder) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // KeyData ::= SEQUENCE {
		kind := int64(keyDataKindSoft)
		if d.HardwareKey != nil {
			kind = keyDataKindHardware
		}
		b.AddASN1Enum(kind)                // kind ENUMERATED
		b.AddASN1OctetString(d.Material)   // material OCTET STRING
		var label, id []byte
		if d.HardwareKey != nil {
			label = []byte(d.HardwareKey.Label)
			id = []byte(d.HardwareKey.ID)
		}
		b.AddASN1OctetString(label)        // label OCTET STRING
		b.AddASN1OctetString(id)           // id OCTET STRING
		d.HwEnforced.marshalASN1(b)        // hwEnforced AuthorizationList
		d.SwEnforced.marshalASN1(b)        // swEnforced AuthorizationList
	})
}

func (d *KeyData) marshal() ([]byte, error) {
	builder := cryptobyte.NewBuilder(nil)
	d.marshalASN1(builder)
	return builder.Bytes()
}

func parseKeyData(data []byte) (*KeyData, error) {
	str := cryptobyte.String(data)

	var body cryptobyte.String
	if !str.ReadASN1(&body, cryptobyte_asn1.SEQUENCE) || !str.Empty() {
		return nil, fmt.Errorf("cannot read key data")
	}

	var kind int
	if !body.ReadASN1Enum(&kind) {
		return nil, fmt.Errorf("cannot read key data kind")
	}
	var material, label, id []byte
	if !body.ReadASN1Bytes(&material, cryptobyte_asn1.OCTET_STRING) ||
		!body.ReadASN1Bytes(&label, cryptobyte_asn1.OCTET_STRING) ||
		!body.ReadASN1Bytes(&id, cryptobyte_asn1.OCTET_STRING) {
		return nil, fmt.Errorf("cannot read key data fields")
	}

	hwEnforced, err := parseAuthorizationSet(&body)
	if err != nil {
		return nil, fmt.Errorf("cannot read hardware-enforced authorizations: %w", err)
	}
	swEnforced, err := parseAuthorizationSet(&body)
	if err != nil {
		return nil, fmt.Errorf("cannot read software-enforced authorizations: %w", err)
	}
	if !body.Empty() {
		return nil, fmt.Errorf("excess bytes in key data")
	}

	out := &KeyData{HwEnforced: hwEnforced, SwEnforced: swEnforced}
	switch kind {
	case keyDataKindSoft:
		if len(material) == 0 {
			return nil, fmt.Errorf("key data has no key material")
		}
		if len(label) != 0 || len(id) != 0 {
			return nil, fmt.Errorf("key data has conflicting variants")
		}
		out.Material = material
	case keyDataKindHardware:
		if len(material) != 0 {
			return nil, fmt.Errorf("key data has conflicting variants")
		}
		out.HardwareKey = &HardwareKeyRef{Label: string(label), ID: string(id)}
	default:
		return nil, fmt.Errorf("key data has unexpected kind (%d)", kind)
	}

	return out, nil
}

// deriveBlobAESKey derives the AES-256 key used to encrypt key blobs from
// the keystore-supplied encryption key.
func deriveBlobAESKey(ikm []byte) []byte {
	r := hkdf.New(crypto.SHA256.New, ikm, nil, []byte("KEY BLOB ENCRYPT"))

	key := make([]byte, blobKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		panic(fmt.Sprintf("cannot derive key: %v", err))
	}

	return key
}

func (c *Context) blobAEAD() (cipher.AEAD, error) {
	kek, err := c.keystore.BlobEncryptionKey()
	if err != nil {
		return nil, xerrors.Errorf("cannot obtain blob encryption key: %w", err)
	}
	if len(kek) != blobKeySize {
		return nil, fmt.Errorf("blob encryption key has unexpected size (%d)", len(kek))
	}

	b, err := aes.NewCipher(deriveBlobAESKey(kek))
	if err != nil {
		return nil, xerrors.Errorf("cannot create cipher: %w", err)
	}
	return cipher.NewGCM(b)
}

// encodeKeyBlob serializes data, binds it to the serialized form of the
// hidden authorization set via AAD and encrypts it under a key obtained
// from the external keystore. The hidden set is never stored in the blob -
// the caller must present the same set again to decode it.
func (c *Context) encodeKeyBlob(data *KeyData, hidden AuthorizationSet) (KeyBlob, error) {
	plaintext, err := data.marshal()
	if err != nil {
		return nil, xerrors.Errorf("cannot serialize key data: %w", err)
	}
	aad, err := hidden.Serialize()
	if err != nil {
		return nil, xerrors.Errorf("cannot serialize hidden authorizations: %w", err)
	}

	aead, err := c.blobAEAD()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	nonce := make([]byte, blobNonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: cannot obtain nonce: %v", ErrUnknown, err)
	}

	blob := make([]byte, 0, 1+blobNonceSize+len(plaintext)+blobTagSize)
	blob = append(blob, keyBlobVersion)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, aad)

	return KeyBlob(blob), nil
}

// decodeKeyBlob authenticates and decrypts blob using the supplied hidden
// authorization set as AAD. Blobs that do not carry the current version
// byte are handed to the legacy decoder - a blob that does carry it never
// falls back, so a tampered current-format blob cannot masquerade as a
// legacy one.
func (c *Context) decodeKeyBlob(blob KeyBlob, hidden AuthorizationSet) (*KeyData, error) {
	if len(blob) < 1+blobNonceSize+blobTagSize {
		return nil, &invalidKeyBlobError{"too short"}
	}

	if blob[0] != keyBlobVersion {
		return c.decodeLegacyKeyBlob(blob, hidden)
	}

	aad, err := hidden.Serialize()
	if err != nil {
		return nil, xerrors.Errorf("cannot serialize hidden authorizations: %w", err)
	}

	aead, err := c.blobAEAD()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	nonce := blob[1 : 1+blobNonceSize]
	plaintext, err := aead.Open(nil, nonce, blob[1+blobNonceSize:], aad)
	if err != nil {
		// Authentication failure and hidden-set mismatch are
		// indistinguishable here by construction.
		return nil, ErrInvalidKeyBlob
	}

	data, err := parseKeyData(plaintext)
	if err != nil {
		return nil, &invalidKeyBlobError{"malformed key data"}
	}

	return data, nil
}
