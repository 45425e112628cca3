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

package keymint_test

import (
	"errors"
	"os"
	"path/filepath"

	snapd_testutil "github.com/snapcore/snapd/testutil"
	. "gopkg.in/check.v1"

	. "github.com/chromeos/keymint"
	"github.com/chromeos/keymint/internal/paths"
	"github.com/chromeos/keymint/internal/testutil"
)

type bootstateSuite struct {
	snapd_testutil.BaseTest
}

var _ = Suite(&bootstateSuite{})

func (s *bootstateSuite) SetUpTest(c *C) {
	s.BaseTest.SetUpTest(c)

	orig := paths.VbMetaDigestPath
	paths.VbMetaDigestPath = filepath.Join(c.MkDir(), "vbmeta.digest")
	s.AddCleanup(func() { paths.VbMetaDigestPath = orig })
}

const testBootKeyLine = "root_key_sha1=0102030405060708090a0b0c0d0e0f1011121314"

var testBootKey = []byte{
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a,
	0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14,
}

func (s *bootstateSuite) newContext(c *C, props BootPropertyReader, logs DebugLogReader) *Context {
	keystore := &mockKeyStore{key: make([]byte, 32)}
	ctx, err := NewContext(testutil.NewSeededRand([]byte(c.TestName())), keystore, props, logs)
	c.Assert(err, IsNil)
	return ctx
}

func (s *bootstateSuite) writeDigest(c *C, contents string) {
	c.Assert(os.WriteFile(paths.VbMetaDigestPath, []byte(contents), 0644), IsNil)
}

func (s *bootstateSuite) TestVerifiedDevice(c *C) {
	s.writeDigest(c, "deadbeef\n")
	ctx := s.newContext(c,
		mockBootProperties{DevModeProperty: false},
		mockDebugLog{BootKeyLogName: "boot log\n" + testBootKeyLine + "\ntrailer\n"})

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.State, Equals, VerifiedBootStateVerified)
	c.Check(params.DeviceLocked, Equals, true)
	c.Check(params.VerifiedBootHash, DeepEquals, []byte{0xde, 0xad, 0xbe, 0xef})
	c.Check(params.VerifiedBootKey, DeepEquals, testBootKey)
}

func (s *bootstateSuite) TestDevModeDevice(c *C) {
	ctx := s.newContext(c,
		mockBootProperties{DevModeProperty: true},
		mockDebugLog{BootKeyLogName: testBootKeyLine})

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.State, Equals, VerifiedBootStateUnverified)
	c.Check(params.DeviceLocked, Equals, false)
	// Development mode substitutes an all-zero boot key without
	// consulting the log.
	c.Check(params.VerifiedBootKey, DeepEquals, make([]byte, BootKeySize))
}

func (s *bootstateSuite) TestUnreadablePropertyDegradesToDevMode(c *C) {
	ctx := s.newContext(c, mockBootProperties{}, mockDebugLog{})

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.State, Equals, VerifiedBootStateUnverified)
	c.Check(params.DeviceLocked, Equals, false)
}

func (s *bootstateSuite) TestMissingDigestAndLogLeaveFieldsUnset(c *C) {
	ctx := s.newContext(c,
		mockBootProperties{DevModeProperty: false},
		mockDebugLog{})

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.State, Equals, VerifiedBootStateVerified)
	c.Check(params.VerifiedBootHash, IsNil)
	c.Check(params.VerifiedBootKey, IsNil)
}

func (s *bootstateSuite) TestMalformedDigestLeavesHashUnset(c *C) {
	s.writeDigest(c, "not hex")
	ctx := s.newContext(c,
		mockBootProperties{DevModeProperty: false},
		mockDebugLog{})

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.VerifiedBootHash, IsNil)
}

func (s *bootstateSuite) TestMalformedBootKeyLineLeavesKeyUnset(c *C) {
	ctx := s.newContext(c,
		mockBootProperties{DevModeProperty: false},
		mockDebugLog{BootKeyLogName: "root_key_sha1=0102"})

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.VerifiedBootKey, IsNil)
}

func (s *bootstateSuite) TestDerivationIsCached(c *C) {
	props := mockBootProperties{DevModeProperty: false}
	ctx := s.newContext(c, props, mockDebugLog{BootKeyLogName: testBootKeyLine})

	var first VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&first), IsNil)

	// Flipping the underlying property after the first derivation does
	// not change the reported state.
	props[DevModeProperty] = true

	var second VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&second), IsNil)
	c.Check(second, DeepEquals, first)

	// Dropping the cache picks up the new state.
	ResetVerifiedBootState(ctx)
	var third VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&third), IsNil)
	c.Check(third.State, Equals, VerifiedBootStateUnverified)
}

func (s *bootstateSuite) TestSetVerifiedBootParams(c *C) {
	ctx := s.newContext(c,
		mockBootProperties{DevModeProperty: true},
		mockDebugLog{BootKeyLogName: testBootKeyLine})

	hash := []byte{1, 2, 3, 4}
	c.Assert(ctx.SetVerifiedBootParams(VerifiedBootStateVerified, BootloaderStateLocked, hash), IsNil)

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.State, Equals, VerifiedBootStateVerified)
	c.Check(params.DeviceLocked, Equals, true)
	c.Check(params.VerifiedBootHash, DeepEquals, hash)
	// The boot key has no external source; it is still read from the
	// debug log.
	c.Check(params.VerifiedBootKey, DeepEquals, testBootKey)
}

func (s *bootstateSuite) TestSetVerifiedBootParamsReplacesCachedDerivation(c *C) {
	ctx := s.newContext(c,
		mockBootProperties{DevModeProperty: false},
		mockDebugLog{BootKeyLogName: testBootKeyLine})

	var params VerifiedBootParams
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.State, Equals, VerifiedBootStateVerified)

	c.Assert(ctx.SetVerifiedBootParams(VerifiedBootStateFailed, BootloaderStateUnlocked, nil), IsNil)
	c.Assert(ctx.GetVerifiedBootParams(&params), IsNil)
	c.Check(params.State, Equals, VerifiedBootStateFailed)
	c.Check(params.DeviceLocked, Equals, false)
}

func (s *bootstateSuite) TestSetVerifiedBootParamsValidation(c *C) {
	ctx := s.newContext(c, mockBootProperties{DevModeProperty: false}, mockDebugLog{})

	err := ctx.SetVerifiedBootParams("turquoise", BootloaderStateLocked, nil)
	c.Check(errors.Is(err, ErrInvalidArgument), testutil.IsTrue)

	err = ctx.SetVerifiedBootParams(VerifiedBootStateVerified, "ajar", nil)
	c.Check(errors.Is(err, ErrInvalidArgument), testutil.IsTrue)
}

func (s *bootstateSuite) TestGetVerifiedBootParamsNullOutput(c *C) {
	ctx := s.newContext(c, mockBootProperties{DevModeProperty: false}, mockDebugLog{})
	c.Check(ctx.GetVerifiedBootParams(nil), Equals, ErrOutputNull)
}
