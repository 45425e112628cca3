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
	"bufio"
	"bytes"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/snapcore/snapd/osutil"

	"github.com/chromeos/keymint/internal/paths"
)

// BootPropertyReader reads flags from the boot property store.
type BootPropertyReader interface {
	// GetBoolProperty returns the named property coerced to a boolean.
	// It returns an error if the property does not exist or cannot be
	// coerced.
	GetBoolProperty(name string) (bool, error)
}

// DebugLogReader fetches named logs from the device debug-log service.
type DebugLogReader interface {
	// GetLog returns the contents of the named log, or an error if the
	// log is unavailable.
	GetLog(name string) (string, error)
}

// VerifiedBootState describes the device's verified-boot outcome as
// reported to the attestation protocol.
type VerifiedBootState string

const (
	VerifiedBootStateVerified   VerifiedBootState = "verified"
	VerifiedBootStateUnverified VerifiedBootState = "unverified"
	VerifiedBootStateFailed     VerifiedBootState = "failed"
)

// BootloaderState describes the bootloader lock state. Only the two
// values below are representable: locked maps to a verified boot state and
// unlocked to an unverified one.
type BootloaderState string

const (
	BootloaderStateLocked   BootloaderState = "locked"
	BootloaderStateUnlocked BootloaderState = "unlocked"
)

// VerifiedBootParams is the fixed structure the attestation protocol
// consumes. Hash and key fields hold raw bytes, not hex or base64 - they
// are unset (nil) when the underlying data source has nothing for them.
type VerifiedBootParams struct {
	DeviceLocked     bool
	State            VerifiedBootState
	VerifiedBootHash []byte
	VerifiedBootKey  []byte
}

const (
	// devModeProperty is the boot property that reports whether the
	// device is in development mode.
	devModeProperty = "cros_debug"

	// bootKeyLogName is the debug-log service log scanned for the
	// verified-boot root key digest.
	bootKeyLogName = "verified boot state"

	// bootKeyLogPattern prefixes the log line carrying the SHA1 of the
	// verified-boot root key.
	bootKeyLogPattern = "root_key_sha1="

	bootKeySize = 20
)

// bootStateManager lazily derives the device verified-boot state from the
// boot property store, the vbmeta digest file and the debug-log service.
// Derivation runs at most once per manager; both the lazy-initialization
// race and installs of externally supplied parameters are resolved under
// the mutex so every caller observes the same final fields.
type bootStateManager struct {
	props BootPropertyReader
	logs  DebugLogReader

	mu       sync.Mutex
	derived  bool
	params   VerifiedBootParams
	override *bootParamsOverride
}

// bootParamsOverride carries verified-boot fields supplied by the
// surrounding protocol. The boot key is still derived locally - the
// protocol has no better source for it.
type bootParamsOverride struct {
	state  VerifiedBootState
	locked bool
	hash   []byte
}

func newBootStateManager(props BootPropertyReader, logs DebugLogReader) *bootStateManager {
	return &bootStateManager{props: props, logs: logs}
}

// setParams installs externally supplied verified-boot fields, which take
// precedence over local derivation. Installing them drops any cached
// derivation so the next access observes the new values.
func (m *bootStateManager) setParams(state VerifiedBootState, locked bool, hash []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = &bootParamsOverride{
		state:  state,
		locked: locked,
		hash:   append([]byte(nil), hash...),
	}
	m.derived = false
}

// get returns the derived parameters, deriving and caching them on first
// access. Note that derivation performs blocking reads of the property
// store, the digest file and the debug-log service - callers on
// latency-sensitive paths should force it during setup.
func (m *bootStateManager) get() VerifiedBootParams {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.derived {
		m.params = m.derive()
		m.derived = true
	}
	return m.params
}

// reset drops the cached derivation. Tests only.
func (m *bootStateManager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.derived = false
	m.override = nil
}

func (m *bootStateManager) derive() VerifiedBootParams {
	if m.override != nil {
		return VerifiedBootParams{
			DeviceLocked:     m.override.locked,
			State:            m.override.state,
			VerifiedBootHash: m.override.hash,
			VerifiedBootKey:  m.readBootKey(!m.override.locked),
		}
	}

	// An unreadable or malformed device-mode flag degrades to
	// development mode. A false "unverified" merely weakens attestation;
	// the derivation must never fail open toward "verified".
	devMode := true
	if v, err := m.props.GetBoolProperty(devModeProperty); err == nil {
		devMode = v
	}

	params := VerifiedBootParams{
		DeviceLocked: !devMode,
		State:        VerifiedBootStateUnverified,
	}
	if !devMode {
		params.State = VerifiedBootStateVerified
	}

	params.VerifiedBootHash = readVbMetaDigest()
	params.VerifiedBootKey = m.readBootKey(devMode)

	return params
}

// readVbMetaDigest reads the verified-boot metadata digest. The file holds
// the digest as a hex string; absence of the file or a malformed digest
// yields an unset field rather than an error.
func readVbMetaDigest() []byte {
	if !osutil.FileExists(paths.VbMetaDigestPath) {
		return nil
	}
	data, err := os.ReadFile(paths.VbMetaDigestPath)
	if err != nil {
		return nil
	}
	digest, err := hex.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil || len(digest) == 0 {
		return nil
	}
	return digest
}

// readBootKey obtains the SHA1 of the verified-boot root key from the
// debug-log service. The log is only meaningful on verified devices, so
// development mode substitutes an all-zero key without querying it.
func (m *bootStateManager) readBootKey(devMode bool) []byte {
	if devMode {
		return make([]byte, bootKeySize)
	}

	log, err := m.logs.GetLog(bootKeyLogName)
	if err != nil {
		return nil
	}

	scanner := bufio.NewScanner(strings.NewReader(log))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, bootKeyLogPattern) {
			continue
		}
		key, err := hex.DecodeString(strings.TrimSpace(line[len(bootKeyLogPattern):]))
		if err != nil || len(key) != bootKeySize {
			return nil
		}
		return key
	}
	return nil
}
