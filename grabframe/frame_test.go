// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package grabframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankFromIndex(t *testing.T) {
	assert.Equal(t, BankA, BankFromIndex(0))
	assert.Equal(t, BankB, BankFromIndex(1))
	assert.Equal(t, BankC, BankFromIndex(2))
	// 3 is not a defined hardware state.
	assert.Equal(t, BankA, BankFromIndex(3))
	assert.Equal(t, BankA, BankFromIndex(0xffffffff))

	for raw := uint32(0); raw < 16; raw++ {
		assert.True(t, BankFromIndex(raw).Valid())
	}
}

func TestResolutionFallback(t *testing.T) {
	w, h := Resolution(42).Dimensions()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.False(t, Resolution(42).Known())

	assert.Equal(t, 1280, Res1280x720.ResX())
	assert.Equal(t, 720, Res1280x720.ResY())
	assert.Equal(t, 640*480*2, Res640x480.FrameSize())
}

func TestParseResolution(t *testing.T) {
	r, ok := ParseResolution("960x540")
	assert.True(t, ok)
	assert.Equal(t, Res960x540, r)

	r, ok = ParseResolution("4k")
	assert.False(t, ok)
	assert.Equal(t, Baseline, r)
}

func TestBankLayout(t *testing.T) {
	banks := NewBanks(16, 4)
	assert.Equal(t, 4, banks.HeaderMargin())
	assert.Equal(t, 16, banks.FrameCapacity())

	copy(banks.Frame(BankB), []byte{1, 2, 3})

	f := banks.Acquire(BankB)
	defer banks.Release(BankB)
	assert.Equal(t, []byte{1, 2, 3}, f.Data()[:3])

	withHeader, err := f.WithHeader(2)
	require.NoError(t, err)
	assert.Len(t, withHeader, 18)
	assert.Equal(t, []byte{0, 0, 1, 2, 3}, withHeader[:5])

	_, err = f.WithHeader(5)
	assert.Error(t, err)
}

func TestBankOwnership(t *testing.T) {
	banks := NewBanks(8, 2)
	banks.Acquire(BankC)
	assert.False(t, banks.TryClaim(BankC))
	assert.True(t, banks.TryClaim(BankA))
	banks.Release(BankA)
	banks.Release(BankC)
	assert.True(t, banks.TryClaim(BankC))
	banks.Release(BankC)
}

func TestBanksFromRegions(t *testing.T) {
	_, err := BanksFromRegions([NumBanks][]byte{make([]byte, 8), make([]byte, 8), make([]byte, 4)}, 2)
	assert.Error(t, err)

	_, err = BanksFromRegions([NumBanks][]byte{make([]byte, 1), make([]byte, 1), make([]byte, 1)}, 2)
	assert.Error(t, err)

	b, err := BanksFromRegions([NumBanks][]byte{make([]byte, 8), make([]byte, 8), make([]byte, 8)}, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, b.FrameCapacity())
}
