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

package paths

var (
	// BootPropertyDir is the directory under which the boot property
	// store exports one file per property.
	BootPropertyDir = "/run/crossystem"

	// VbMetaDigestPath is the well-known location of the verified-boot
	// metadata digest. Absence of this file is a normal condition on
	// devices that do not populate it.
	VbMetaDigestPath = "/opt/google/containers/android/vbmeta.digest"
)
