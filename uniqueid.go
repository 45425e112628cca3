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
	_ "crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	kdf "github.com/canonical/go-sp800.108-kdf"
	"golang.org/x/crypto/hkdf"
)

const (
	// uniqueIDRotationPeriod is the bucket width applied to the key
	// creation time before it enters the derivation, so that the same
	// application receives the same identifier for roughly a month.
	uniqueIDRotationPeriod = 30 * 24 * time.Hour

	uniqueIDSize = 16
)

func (p *EnforcementPolicy) uniqueIDKey() []byte {
	r := hkdf.New(crypto.SHA256.New, p.sessionKey, nil, []byte("UNIQUE ID"))

	key := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		panic(fmt.Sprintf("cannot derive key: %v", err))
	}

	return key
}

// computeUniqueID derives the attestation unique identifier for an
// application. The identifier is stable for a given application within a
// rotation period, and changes whenever resetSinceRotation toggles.
func computeUniqueID(p *EnforcementPolicy, creationTime time.Time, appID []byte, resetSinceRotation bool) []byte {
	label := make([]byte, 8)
	binary.BigEndian.PutUint64(label, uint64(creationTime.UnixMilli()/uniqueIDRotationPeriod.Milliseconds()))

	context := make([]byte, 0, len(appID)+1)
	context = append(context, appID...)
	if resetSinceRotation {
		context = append(context, 1)
	}

	return kdf.CounterModeKey(kdf.NewHMACPRF(crypto.SHA256), p.uniqueIDKey(), label, context, uniqueIDSize*8)
}
