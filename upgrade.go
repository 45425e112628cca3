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

// versionInfo is the device software state a key blob is gated on. It
// rides inside the blob's hardware-enforced authorization set.
type versionInfo struct {
	osVersion        uint32
	osPatchlevel     uint32
	vendorPatchlevel uint32
	bootPatchlevel   uint32
}

type upgradeOutcome int

const (
	// upgradeNotNeeded means the blob already matches the device state.
	upgradeNotNeeded upgradeOutcome = iota
	// upgradeRequired means the blob is older than the device state and
	// must be re-encoded under the current state.
	upgradeRequired
	// upgradeRejected means the blob comes from a newer or more patched
	// system. Later patchlevels may have fixed vulnerabilities the
	// blob's security properties depend on, so it must never be
	// accepted.
	upgradeRejected
)

// decideUpgrade compares a blob's embedded state with the current device
// state. The four components are treated as one vector: any component
// newer than the device rejects, otherwise any older component upgrades.
func decideUpgrade(blob, current versionInfo) upgradeOutcome {
	pairs := [...][2]uint32{
		{blob.osVersion, current.osVersion},
		{blob.osPatchlevel, current.osPatchlevel},
		{blob.vendorPatchlevel, current.vendorPatchlevel},
		{blob.bootPatchlevel, current.bootPatchlevel},
	}

	outcome := upgradeNotNeeded
	for _, pair := range pairs {
		switch {
		case pair[0] > pair[1]:
			return upgradeRejected
		case pair[0] < pair[1]:
			outcome = upgradeRequired
		}
	}
	return outcome
}

// versionInfoFromAuthorizations extracts the embedded device state from a
// hardware-enforced authorization set. Missing tags read as zero, which
// ensures blobs created before a patchlevel tag existed still upgrade
// cleanly.
func versionInfoFromAuthorizations(s AuthorizationSet) versionInfo {
	var info versionInfo
	info.osVersion, _ = s.GetUint(TagOSVersion)
	info.osPatchlevel, _ = s.GetUint(TagOSPatchlevel)
	info.vendorPatchlevel, _ = s.GetUint(TagVendorPatchlevel)
	info.bootPatchlevel, _ = s.GetUint(TagBootPatchlevel)
	return info
}

// apply rewrites the version tags in s to this state, appending any tag
// that was not previously present.
func (i versionInfo) apply(s AuthorizationSet) AuthorizationSet {
	values := map[Tag]uint32{
		TagOSVersion:        i.osVersion,
		TagOSPatchlevel:     i.osPatchlevel,
		TagVendorPatchlevel: i.vendorPatchlevel,
		TagBootPatchlevel:   i.bootPatchlevel,
	}

	out := s.Clone()
	for idx := range out {
		if v, ok := values[out[idx].Tag]; ok {
			out[idx].Integer = v
			delete(values, out[idx].Tag)
		}
	}
	for _, tag := range []Tag{TagOSVersion, TagOSPatchlevel, TagVendorPatchlevel, TagBootPatchlevel} {
		if v, ok := values[tag]; ok {
			out = append(out, UintParam(tag, v))
		}
	}
	return out
}
