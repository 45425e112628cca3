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
	"bytes"
	"fmt"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// TagType describes the type of the value carried by a key parameter tag.
type TagType uint32

const (
	TypeInvalid TagType = iota
	TypeEnum
	TypeUint
	TypeUlong
	TypeDate
	TypeBool
	TypeBytes
)

const tagTypeShift = 28

// Tag identifies a single key property or constraint. The value type is
// encoded in the top 4 bits so that serialization can dispatch on it
// without a separate table.
type Tag uint32

const (
	TagPurpose          Tag = Tag(TypeEnum)<<tagTypeShift | 1
	TagAlgorithm        Tag = Tag(TypeEnum)<<tagTypeShift | 2
	TagKeySize          Tag = Tag(TypeUint)<<tagTypeShift | 3
	TagBlockMode        Tag = Tag(TypeEnum)<<tagTypeShift | 4
	TagDigest           Tag = Tag(TypeEnum)<<tagTypeShift | 5
	TagNoAuthRequired   Tag = Tag(TypeBool)<<tagTypeShift | 503
	TagApplicationID    Tag = Tag(TypeBytes)<<tagTypeShift | 601
	TagApplicationData  Tag = Tag(TypeBytes)<<tagTypeShift | 700
	TagCreationDatetime Tag = Tag(TypeDate)<<tagTypeShift | 701
	TagRootOfTrust      Tag = Tag(TypeBytes)<<tagTypeShift | 704
	TagOSVersion        Tag = Tag(TypeUint)<<tagTypeShift | 705
	TagOSPatchlevel     Tag = Tag(TypeUint)<<tagTypeShift | 706
	TagUniqueID         Tag = Tag(TypeBytes)<<tagTypeShift | 707
	TagVendorPatchlevel Tag = Tag(TypeUint)<<tagTypeShift | 718
	TagBootPatchlevel   Tag = Tag(TypeUint)<<tagTypeShift | 719
	TagNonce            Tag = Tag(TypeBytes)<<tagTypeShift | 1001
)

// Type returns the value type carried by this tag.
func (t Tag) Type() TagType {
	return TagType(t >> tagTypeShift)
}

// KeyParameter is a single (tag, value) pair. Exactly one of the value
// fields is significant, selected by Tag.Type().
type KeyParameter struct {
	Tag     Tag
	Bool    bool
	Integer uint32
	Long    uint64
	Bytes   []byte
}

// BoolParam creates a boolean parameter. Boolean parameters are only ever
// serialized with a true value - a false constraint is expressed by
// omitting the tag.
func BoolParam(tag Tag) KeyParameter {
	return KeyParameter{Tag: tag, Bool: true}
}

// EnumParam creates an enumerated parameter.
func EnumParam(tag Tag, value uint32) KeyParameter {
	return KeyParameter{Tag: tag, Integer: value}
}

// UintParam creates a 32-bit integer parameter.
func UintParam(tag Tag, value uint32) KeyParameter {
	return KeyParameter{Tag: tag, Integer: value}
}

// UlongParam creates a 64-bit integer parameter.
func UlongParam(tag Tag, value uint64) KeyParameter {
	return KeyParameter{Tag: tag, Long: value}
}

// DateParam creates a date parameter, stored with millisecond precision.
func DateParam(tag Tag, value time.Time) KeyParameter {
	return KeyParameter{Tag: tag, Long: uint64(value.UnixMilli())}
}

// BytesParam creates a byte-array parameter.
func BytesParam(tag Tag, value []byte) KeyParameter {
	return KeyParameter{Tag: tag, Bytes: value}
}

func (p *KeyParameter) clone() KeyParameter {
	out := *p
	if p.Bytes != nil {
		out.Bytes = make([]byte, len(p.Bytes))
		copy(out.Bytes, p.Bytes)
	}
	return out
}

// AuthorizationSet is an ordered sequence of key parameters. Order is
// significant for serialization but not for authorization semantics. Call
// paths never share a set for mutation - use Clone when handing one to
// another owner.
type AuthorizationSet []KeyParameter

// Clone returns a deep copy of this set.
func (s AuthorizationSet) Clone() AuthorizationSet {
	if s == nil {
		return nil
	}
	out := make(AuthorizationSet, 0, len(s))
	for i := range s {
		out = append(out, s[i].clone())
	}
	return out
}

// Contains reports whether the set has at least one parameter with the
// supplied tag.
func (s AuthorizationSet) Contains(tag Tag) bool {
	for i := range s {
		if s[i].Tag == tag {
			return true
		}
	}
	return false
}

// GetUint returns the first 32-bit integer value associated with the
// supplied tag.
func (s AuthorizationSet) GetUint(tag Tag) (uint32, bool) {
	for i := range s {
		if s[i].Tag == tag {
			return s[i].Integer, true
		}
	}
	return 0, false
}

// GetBytes returns the first byte-array value associated with the
// supplied tag.
func (s AuthorizationSet) GetBytes(tag Tag) ([]byte, bool) {
	for i := range s {
		if s[i].Tag == tag {
			return s[i].Bytes, true
		}
	}
	return nil, false
}

func (s AuthorizationSet) marshalASN1(b *cryptobyte.Builder) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AuthorizationList ::= SEQUENCE OF
		for i := range s {
			p := s[i]
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // Authorization ::= SEQUENCE {
				b.AddASN1Uint64(uint64(p.Tag)) // tag INTEGER
				switch p.Tag.Type() {
				case TypeBool:
					b.AddASN1Boolean(p.Bool)
				case TypeEnum, TypeUint:
					b.AddASN1Uint64(uint64(p.Integer))
				case TypeUlong, TypeDate:
					b.AddASN1Uint64(p.Long)
				case TypeBytes:
					b.AddASN1OctetString(p.Bytes)
				default:
					b.SetError(fmt.Errorf("cannot serialize authorization with invalid tag type (tag %#x)", uint32(p.Tag)))
				}
			})
		}
	})
}

// Serialize returns the canonical byte form of this set. Two sets are
// treated as identical for hidden-set binding purposes exactly when their
// serialized forms are byte-for-byte equal.
func (s AuthorizationSet) Serialize() ([]byte, error) {
	builder := cryptobyte.NewBuilder(nil)
	s.marshalASN1(builder)
	return builder.Bytes()
}

// Equal reports whether both sets serialize to the same byte sequence.
func (s AuthorizationSet) Equal(other AuthorizationSet) bool {
	a, err := s.Serialize()
	if err != nil {
		return false
	}
	b, err := other.Serialize()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func parseAuthorizationSet(str *cryptobyte.String) (AuthorizationSet, error) {
	var list cryptobyte.String
	if !str.ReadASN1(&list, cryptobyte_asn1.SEQUENCE) {
		return nil, fmt.Errorf("cannot read authorization list")
	}

	out := AuthorizationSet{}
	for !list.Empty() {
		var entry cryptobyte.String
		if !list.ReadASN1(&entry, cryptobyte_asn1.SEQUENCE) {
			return nil, fmt.Errorf("cannot read authorization")
		}

		var tag uint64
		if !entry.ReadASN1Integer(&tag) {
			return nil, fmt.Errorf("cannot read authorization tag")
		}

		p := KeyParameter{Tag: Tag(tag)}
		switch p.Tag.Type() {
		case TypeBool:
			if !entry.ReadASN1Boolean(&p.Bool) {
				return nil, fmt.Errorf("cannot read boolean authorization value")
			}
		case TypeEnum, TypeUint:
			var v uint64
			if !entry.ReadASN1Integer(&v) || v > 0xffffffff {
				return nil, fmt.Errorf("cannot read integer authorization value")
			}
			p.Integer = uint32(v)
		case TypeUlong, TypeDate:
			if !entry.ReadASN1Integer(&p.Long) {
				return nil, fmt.Errorf("cannot read long authorization value")
			}
		case TypeBytes:
			var v []byte
			if !entry.ReadASN1Bytes(&v, cryptobyte_asn1.OCTET_STRING) {
				return nil, fmt.Errorf("cannot read byte-array authorization value")
			}
			p.Bytes = v
		default:
			return nil, fmt.Errorf("authorization has invalid tag type")
		}
		if !entry.Empty() {
			return nil, fmt.Errorf("excess bytes in authorization")
		}

		out = append(out, p)
	}

	return out, nil
}

func parseAuthorizationSetBytes(data []byte) (AuthorizationSet, error) {
	str := cryptobyte.String(data)
	set, err := parseAuthorizationSet(&str)
	if err != nil {
		return nil, err
	}
	if !str.Empty() {
		return nil, fmt.Errorf("excess bytes after authorization list")
	}
	return set, nil
}
