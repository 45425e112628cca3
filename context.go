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

// Package keymint implements the key-management context for a
// software-backed key store sitting behind a verified-boot subsystem. It
// owns the opaque persisted representation of keys (key blobs), binds each
// blob to the caller context it was created for, derives device
// verified-boot state for remote attestation and migrates blobs across
// device software version changes.
//
// The package performs no I/O of its own beyond the one-time verified-boot
// derivation, persists nothing, and never retries or logs key material -
// every operation returns a typed result to the caller.
package keymint

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

// Context composes the key blob codec, enforcement policy, hardware key
// indirection and verified-boot state behind the fixed interface the
// surrounding keystore protocol machinery calls. Contexts own all of their
// state - two contexts never share a session key or a placeholder pool.
type Context struct {
	rand     io.Reader
	keystore KeyStore
	policy   *EnforcementPolicy

	placeholders placeholderPool
	bootState    *bootStateManager

	mu       sync.Mutex
	versions versionInfo
}

// NewContext creates a Context. rand supplies nonces and the enforcement
// policy session key, keystore supplies the blob encryption key, and
// props/logs are the boot property store and debug-log service consumed by
// verified-boot derivation.
func NewContext(rand io.Reader, keystore KeyStore, props BootPropertyReader, logs DebugLogReader) (*Context, error) {
	policy, err := NewEnforcementPolicy(rand)
	if err != nil {
		return nil, xerrors.Errorf("cannot create enforcement policy: %w", err)
	}

	return &Context{
		rand:      rand,
		keystore:  keystore,
		policy:    policy,
		bootState: newBootStateManager(props, logs),
	}, nil
}

// EnforcementPolicy returns the context's enforcement policy.
func (c *Context) EnforcementPolicy() *EnforcementPolicy {
	return c.policy
}

// InstallPlaceholderKeys replaces the hardware key placeholder pool.
// Unconsumed entries from a previous install are discarded.
func (c *Context) InstallPlaceholderKeys(keys []PlaceholderKey) {
	c.placeholders.install(keys)
}

// CreateKeyBlob encodes key material and its authorization sets into a new
// blob bound to the hidden authorization set. If the material matches an
// installed placeholder the placeholder is consumed and the blob records
// the hardware key reference instead of the material.
func (c *Context) CreateKeyBlob(material []byte, hidden, hwEnforced, swEnforced AuthorizationSet, blob *KeyBlob) error {
	if blob == nil {
		return ErrOutputNull
	}
	if len(material) == 0 {
		return fmt.Errorf("%w: no key material", ErrInvalidArgument)
	}

	data := &KeyData{
		HwEnforced: hwEnforced.Clone(),
		SwEnforced: swEnforced.Clone(),
	}
	if placeholder, ok := c.placeholders.findAndConsume(material); ok {
		data.HardwareKey = &HardwareKeyRef{Label: placeholder.Label, ID: placeholder.ID}
	} else {
		data.Material = append([]byte(nil), material...)
	}

	out, err := c.encodeKeyBlob(data, hidden)
	if err != nil {
		return err
	}

	*blob = out
	return nil
}

// ParseKeyBlob decodes blob with the supplied hidden authorization set and
// returns the key material and both authorization sets. For hardware key
// references the material output is left empty - use ParseKeyData when the
// reference itself is needed. All three outputs must be non-nil; none of
// them is touched until every check has passed.
func (c *Context) ParseKeyBlob(blob KeyBlob, hidden AuthorizationSet, material *[]byte, hwEnforced, swEnforced *AuthorizationSet) error {
	if material == nil || hwEnforced == nil || swEnforced == nil {
		return ErrOutputNull
	}

	data, err := c.decodeKeyBlob(blob, hidden)
	if err != nil {
		return err
	}

	*material = data.Material
	*hwEnforced = data.HwEnforced
	*swEnforced = data.SwEnforced
	return nil
}

// ParseKeyData decodes blob with the supplied hidden authorization set and
// returns the full decoded key data, including any hardware key reference.
func (c *Context) ParseKeyData(blob KeyBlob, hidden AuthorizationSet) (*KeyData, error) {
	return c.decodeKeyBlob(blob, hidden)
}

// SetSystemVersion records the device OS version and OS patchlevel that
// key blobs are gated on.
func (c *Context) SetSystemVersion(version, patchlevel uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions.osVersion = version
	c.versions.osPatchlevel = patchlevel
}

// SetVendorPatchlevel records the device vendor patchlevel.
func (c *Context) SetVendorPatchlevel(patchlevel uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions.vendorPatchlevel = patchlevel
}

// SetBootPatchlevel records the device boot patchlevel.
func (c *Context) SetBootPatchlevel(patchlevel uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions.bootPatchlevel = patchlevel
}

func (c *Context) currentVersions() versionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions
}

// UpgradeKeyBlob re-encodes blob under the current device version state.
// If the blob already matches, out is set to nil and the caller keeps
// using the original. If the blob embeds a newer state than the device -
// a downgrade attempt - the call fails with ErrInvalidArgument. The
// original blob remains valid for reads until the caller replaces it.
func (c *Context) UpgradeKeyBlob(blob KeyBlob, hidden AuthorizationSet, out *KeyBlob) error {
	if out == nil {
		return ErrOutputNull
	}

	data, err := c.decodeKeyBlob(blob, hidden)
	if err != nil {
		return err
	}

	current := c.currentVersions()
	switch decideUpgrade(versionInfoFromAuthorizations(data.HwEnforced), current) {
	case upgradeNotNeeded:
		*out = nil
		return nil
	case upgradeRejected:
		return fmt.Errorf("%w: key blob was created on a newer system", ErrInvalidArgument)
	}

	data.HwEnforced = current.apply(data.HwEnforced)
	upgraded, err := c.encodeKeyBlob(data, hidden)
	if err != nil {
		return err
	}

	*out = upgraded
	return nil
}

// SetVerifiedBootParams installs verified-boot fields supplied by the
// surrounding protocol, which take precedence over local derivation.
func (c *Context) SetVerifiedBootParams(state VerifiedBootState, bootloader BootloaderState, vbmetaDigest []byte) error {
	switch state {
	case VerifiedBootStateVerified, VerifiedBootStateUnverified, VerifiedBootStateFailed:
	default:
		return fmt.Errorf("%w: unexpected verified boot state %q", ErrInvalidArgument, string(state))
	}
	switch bootloader {
	case BootloaderStateLocked, BootloaderStateUnlocked:
	default:
		return fmt.Errorf("%w: unexpected bootloader state %q", ErrInvalidArgument, string(bootloader))
	}

	c.bootState.setParams(state, bootloader == BootloaderStateLocked, vbmetaDigest)
	return nil
}

// GetVerifiedBootParams returns the device verified-boot parameters,
// deriving and caching them on first access.
func (c *Context) GetVerifiedBootParams(out *VerifiedBootParams) error {
	if out == nil {
		return ErrOutputNull
	}
	*out = c.bootState.get()
	return nil
}

// GetUniqueId derives the attestation unique identifier for an
// application. The identifier is deterministic for a given creation-time
// rotation bucket and application id, and changes whenever
// resetSinceRotation toggles.
func (c *Context) GetUniqueId(creationTime time.Time, appID []byte, resetSinceRotation bool, out *[]byte) error {
	if out == nil {
		return ErrOutputNull
	}
	*out = computeUniqueID(c.policy, creationTime, appID, resetSinceRotation)
	return nil
}
