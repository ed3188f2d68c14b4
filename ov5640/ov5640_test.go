// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ov5640

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2ctest"

	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
)

func recordedWrites(t *testing.T, rec *i2ctest.Record) []regValue {
	var out []regValue
	for _, op := range rec.Ops {
		require.Equal(t, uint16(DefaultAddr), op.Addr)
		require.Len(t, op.W, 3, "every recorded transaction should be a register write")
		out = append(out, regValue{uint16(op.W[0])<<8 | uint16(op.W[1]), op.W[2]})
	}
	return out
}

func newRecorded() (*Configurator, *i2ctest.Record) {
	rec := &i2ctest.Record{}
	return NewConfigurator(NewSensor(&i2c.Dev{Bus: rec, Addr: DefaultAddr})), rec
}

func TestPLLMultiplier(t *testing.T) {
	assert.Equal(t, uint8(70), PLLMultiplier(75))
	assert.Equal(t, uint8(28), PLLMultiplier(30))
	assert.Equal(t, uint8(14), PLLMultiplier(15))
	assert.Equal(t, uint8(255), PLLMultiplier(MaxFPS))
}

func TestApplyFormatBaseline(t *testing.T) {
	c, rec := newRecorded()
	c.ApplyFormat(grabframe.Res640x480, 75)

	assert.Equal(t, []regValue{
		{0x3035, 0x21}, {0x3036, 70}, {0x3037, 0x05},
		{0x3800, 0x00}, {0x3801, 0x00},
		{0x3802, 0x00}, {0x3803, 0x04},
		{0x3804, 0x0A}, {0x3805, 0x3F},
		{0x3806, 0x07}, {0x3807, 0x9B},
		{0x3808, 0x02}, {0x3809, 0x80},
		{0x380A, 0x01}, {0x380B, 0xE0},
		{0x380C, 0x07}, {0x380D, 0x68},
		{0x380E, 0x03}, {0x380F, 0xD8},
		{0x3814, 0x62}, {0x3815, 0x62},
	}, recordedWrites(t, rec))
}

func TestApplyFormatUnknownResolutionUsesBaseline(t *testing.T) {
	known, knownRec := newRecorded()
	known.ApplyFormat(grabframe.Res640x480, 30)

	unknown, unknownRec := newRecorded()
	unknown.ApplyFormat(grabframe.Resolution(99), 30)

	assert.Equal(t, recordedWrites(t, knownRec), recordedWrites(t, unknownRec))
}

func TestFormatGeometryMasks(t *testing.T) {
	c, rec := newRecorded()
	c.ApplyFormat(grabframe.Res1920x1080, 30)
	writes := recordedWrites(t, rec)

	byAddr := map[uint16]byte{}
	for _, w := range writes {
		byAddr[w.addr] = w.value
	}
	// 1920 = 0x780, 1080 = 0x438
	assert.Equal(t, byte(0x07), byAddr[regOutWidthHi])
	assert.Equal(t, byte(0x80), byAddr[regOutWidthLo])
	assert.Equal(t, byte(0x04), byAddr[regOutHeightHi])
	assert.Equal(t, byte(0x38), byAddr[regOutHeightLo])
	assert.Equal(t, byte(28), byAddr[regPLLMultiplier])

	g := FormatGeometry(grabframe.Res1920x1080)
	assert.Equal(t, baselineGeometry.XEnd, g.XEnd)
	assert.Equal(t, baselineGeometry.TotalV, g.TotalV)
}

func TestApplyBaseConfigTestPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern bool
		want    byte
	}{{true, 0x80}, {false, 0x00}} {
		c, rec := newRecorded()
		c.ApplyBaseConfig(tc.pattern)
		writes := recordedWrites(t, rec)

		require.Len(t, writes, len(baseConfig)+1+len(analogTail))
		assert.Equal(t, baseConfig, writes[:len(baseConfig)])
		assert.Equal(t, regValue{regPreISPTest, tc.want}, writes[len(baseConfig)])
		assert.Equal(t, analogTail, writes[len(baseConfig)+1:])
	}
}

func TestResetReadModifyWrite(t *testing.T) {
	p := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{0x30, 0x08}},
			{Addr: DefaultAddr, R: []byte{0x42}},
			{Addr: DefaultAddr, W: []byte{0x30, 0x08, 0xC2}},
			{Addr: DefaultAddr, W: []byte{0x30, 0x08}},
			{Addr: DefaultAddr, R: []byte{0xC2}},
			{Addr: DefaultAddr, W: []byte{0x30, 0x08, 0x42}},
		},
	}
	c := NewConfigurator(NewSensor(&i2c.Dev{Bus: p, Addr: DefaultAddr}))
	c.Reset(true)
	c.Reset(false)
	assert.Equal(t, uint64(0), c.BusErrors())
	assert.NoError(t, p.Close())
}

func TestSetPowerModeKeepsOtherBits(t *testing.T) {
	p := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{0x30, 0x08}},
			{Addr: DefaultAddr, R: []byte{0x82}},
			{Addr: DefaultAddr, W: []byte{0x30, 0x08, 0xC2}},
		},
	}
	c := NewConfigurator(NewSensor(&i2c.Dev{Bus: p, Addr: DefaultAddr}))
	c.SetPowerMode(true)
	assert.NoError(t, p.Close())
}

// memSensor is a register file that can drop or corrupt writes.
type memSensor struct {
	regs    map[uint16]byte
	addr    uint16
	failAll bool
	stuck   map[uint16]bool
}

func (m *memSensor) Tx(w, r []byte) error {
	if m.failAll {
		return errors.New("nack")
	}
	if len(w) >= 2 {
		m.addr = uint16(w[0])<<8 | uint16(w[1])
	}
	if len(w) == 3 && !m.stuck[m.addr] {
		m.regs[m.addr] = w[2]
	}
	if len(r) == 1 {
		r[0] = m.regs[m.addr]
	}
	return nil
}

func TestInitializeIgnoresBusErrors(t *testing.T) {
	m := &memSensor{regs: map[uint16]byte{}, failAll: true}
	c := NewConfigurator(NewSensor(m))
	err := c.Initialize(Config{Resolution: grabframe.Res640x480, FPS: 30})
	assert.NoError(t, err)
	assert.NotZero(t, c.BusErrors())
}

func TestInitializeSequence(t *testing.T) {
	m := &memSensor{regs: map[uint16]byte{}}
	c := NewConfigurator(NewSensor(m), WithVerify())
	require.NoError(t, c.Initialize(Config{TestPattern: true, Resolution: grabframe.Res640x480, FPS: 75}))

	assert.Equal(t, byte(0), m.regs[regSystemCtrl0]&systemCtrl0SoftwarePowerDown, "powered back up")
	assert.Equal(t, byte(70), m.regs[regPLLMultiplier])
	assert.Equal(t, byte(preISPTestColorBar), m.regs[regPreISPTest])
}

func TestInitializeVerifyReportsMismatch(t *testing.T) {
	m := &memSensor{regs: map[uint16]byte{}, stuck: map[uint16]bool{regPLLMultiplier: true}}
	c := NewConfigurator(NewSensor(m), WithVerify())
	err := c.Initialize(Config{Resolution: grabframe.Res640x480, FPS: 75})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x3036")
}

func TestSensorTransactions(t *testing.T) {
	rec := &i2ctest.Record{}
	s := NewSensor(&i2c.Dev{Bus: rec, Addr: DefaultAddr})
	require.NoError(t, s.WriteRegister(0x4837, 18))
	require.Len(t, rec.Ops, 1)
	assert.Equal(t, []byte{0x48, 0x37, 18}, rec.Ops[0].W)
}
