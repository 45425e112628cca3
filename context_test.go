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
	"time"

	. "gopkg.in/check.v1"

	. "github.com/chromeos/keymint"
	"github.com/chromeos/keymint/internal/testutil"
)

type contextSuite struct{}

var _ = Suite(&contextSuite{})

func (s *contextSuite) TestNewContextRandFailure(c *C) {
	keystore := &mockKeyStore{key: make([]byte, 32)}
	_, err := NewContext(new(failingReader), keystore,
		mockBootProperties{DevModeProperty: false}, mockDebugLog{})
	c.Check(errors.Is(err, ErrUnknown), testutil.IsTrue)
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func (s *contextSuite) TestCreateKeyBlobNullOutput(c *C) {
	ctx, _ := newTestContext(c)
	c.Check(ctx.CreateKeyBlob([]byte{1}, nil, nil, nil, nil), Equals, ErrOutputNull)
}

func (s *contextSuite) TestCreateKeyBlobEmptyMaterial(c *C) {
	ctx, _ := newTestContext(c)

	var blob KeyBlob
	err := ctx.CreateKeyBlob(nil, nil, nil, nil, &blob)
	c.Check(errors.Is(err, ErrInvalidArgument), testutil.IsTrue)
	c.Check(blob, IsNil)
}

func (s *contextSuite) TestParseKeyBlobNullOutputs(c *C) {
	ctx, _ := newTestContext(c)

	var blob KeyBlob
	c.Assert(ctx.CreateKeyBlob([]byte{1, 2, 3}, nil, nil, nil, &blob), IsNil)

	var material []byte
	var hw, sw AuthorizationSet
	c.Check(ctx.ParseKeyBlob(blob, nil, nil, &hw, &sw), Equals, ErrOutputNull)
	c.Check(ctx.ParseKeyBlob(blob, nil, &material, nil, &sw), Equals, ErrOutputNull)
	c.Check(ctx.ParseKeyBlob(blob, nil, &material, &hw, nil), Equals, ErrOutputNull)

	// None of the outputs was touched by the failed calls.
	c.Check(material, IsNil)
	c.Check(hw, IsNil)
	c.Check(sw, IsNil)
}

func (s *contextSuite) TestGetUniqueIdNullOutput(c *C) {
	ctx, _ := newTestContext(c)
	c.Check(ctx.GetUniqueId(time.Now(), []byte("app"), false, nil), Equals, ErrOutputNull)
}

func (s *contextSuite) TestGetUniqueId(c *C) {
	ctx, _ := newTestContext(c)
	restore := MockSessionKey(ctx.EnforcementPolicy(), make([]byte, 32))
	defer restore()

	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	var id []byte
	c.Assert(ctx.GetUniqueId(when, []byte("app"), false, &id), IsNil)
	c.Check(id, HasLen, 16)

	// Deterministic for the same inputs.
	var again []byte
	c.Assert(ctx.GetUniqueId(when, []byte("app"), false, &again), IsNil)
	c.Check(again, DeepEquals, id)

	// Different applications receive unrelated identifiers.
	var other []byte
	c.Assert(ctx.GetUniqueId(when, []byte("other app"), false, &other), IsNil)
	c.Check(other, Not(DeepEquals), id)
}

func (s *contextSuite) TestGetUniqueIdRotation(c *C) {
	ctx, _ := newTestContext(c)
	restore := MockSessionKey(ctx.EnforcementPolicy(), make([]byte, 32))
	defer restore()

	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	// Stable within a rotation bucket, fresh in the next one.
	var id, laterSameBucket, nextBucket []byte
	c.Assert(ctx.GetUniqueId(when, []byte("app"), false, &id), IsNil)
	c.Assert(ctx.GetUniqueId(when.Add(time.Hour), []byte("app"), false, &laterSameBucket), IsNil)
	c.Assert(ctx.GetUniqueId(when.Add(31*24*time.Hour), []byte("app"), false, &nextBucket), IsNil)
	c.Check(laterSameBucket, DeepEquals, id)
	c.Check(nextBucket, Not(DeepEquals), id)
}

func (s *contextSuite) TestGetUniqueIdResetFlag(c *C) {
	ctx, _ := newTestContext(c)
	restore := MockSessionKey(ctx.EnforcementPolicy(), make([]byte, 32))
	defer restore()

	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	var id, reset []byte
	c.Assert(ctx.GetUniqueId(when, []byte("app"), false, &id), IsNil)
	c.Assert(ctx.GetUniqueId(when, []byte("app"), true, &reset), IsNil)
	c.Check(reset, Not(DeepEquals), id)
}

func (s *contextSuite) TestGetUniqueIdDependsOnSessionKey(c *C) {
	ctx, _ := newTestContext(c)
	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	var id1 []byte
	restore := MockSessionKey(ctx.EnforcementPolicy(), make([]byte, 32))
	c.Assert(ctx.GetUniqueId(when, []byte("app"), false, &id1), IsNil)
	restore()

	key2 := make([]byte, 32)
	key2[0] = 1
	restore = MockSessionKey(ctx.EnforcementPolicy(), key2)
	defer restore()
	var id2 []byte
	c.Assert(ctx.GetUniqueId(when, []byte("app"), false, &id2), IsNil)
	c.Check(id2, Not(DeepEquals), id1)
}

func (s *contextSuite) TestBlobsNotPortableAcrossKeystores(c *C) {
	ctx1, _ := newTestContext(c)

	otherKey := make([]byte, 32)
	for i := range otherKey {
		otherKey[i] = byte(0xff - i)
	}
	ctx2, err := NewContext(testutil.NewSeededRand([]byte(c.TestName())),
		&mockKeyStore{key: otherKey},
		mockBootProperties{DevModeProperty: false}, mockDebugLog{})
	c.Assert(err, IsNil)

	var blob KeyBlob
	c.Assert(ctx1.CreateKeyBlob([]byte{1, 2, 3}, nil, nil, nil, &blob), IsNil)

	var material []byte
	var hw, sw AuthorizationSet
	err = ctx2.ParseKeyBlob(blob, nil, &material, &hw, &sw)
	c.Check(errors.Is(err, ErrInvalidKeyBlob), testutil.IsTrue)
}

func (s *contextSuite) TestKeystoreConsultedPerOperation(c *C) {
	ctx, keystore := newTestContext(c)

	var blob KeyBlob
	c.Assert(ctx.CreateKeyBlob([]byte{1, 2, 3}, nil, nil, nil, &blob), IsNil)
	created := keystore.calls
	c.Check(created > 0, testutil.IsTrue)

	// The blob encryption key is not cached across operations, so a
	// keystore rotation takes effect on the next call.
	var material []byte
	var hw, sw AuthorizationSet
	c.Assert(ctx.ParseKeyBlob(blob, nil, &material, &hw, &sw), IsNil)
	c.Check(keystore.calls > created, testutil.IsTrue)
}
