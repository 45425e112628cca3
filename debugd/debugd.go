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

// Package debugd provides a client for the device debug-log service. Log
// requests are synchronous - a hung service blocks the calling goroutine
// until the bus call times out.
package debugd

import (
	"github.com/godbus/dbus"
	"golang.org/x/xerrors"
)

const (
	busName      = "org.chromium.debugd"
	objectPath   = "/org/chromium/debugd"
	getLogMethod = "org.chromium.debugd.GetLog"
)

// Client fetches named logs from the debug-log service over the system
// bus.
type Client struct {
	obj dbus.BusObject
}

// New connects to the system bus and returns a Client.
func New() (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, xerrors.Errorf("cannot connect to system bus: %w", err)
	}
	return NewWithConn(conn), nil
}

// NewWithConn returns a Client on an existing bus connection.
func NewWithConn(conn *dbus.Conn) *Client {
	return &Client{obj: conn.Object(busName, objectPath)}
}

// GetLog implements keymint.DebugLogReader.
func (c *Client) GetLog(name string) (string, error) {
	var out string
	if err := c.obj.Call(getLogMethod, 0, name).Store(&out); err != nil {
		return "", xerrors.Errorf("cannot fetch log %q: %w", name, err)
	}
	return out, nil
}
