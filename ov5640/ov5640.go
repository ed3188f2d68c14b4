// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package ov5640 brings an OV5640 CMOS sensor into a known streaming mode
// over its SCCB/I2C register interface.
package ov5640

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
)

// Config is the sensor mode applied by Initialize.
type Config struct {
	TestPattern bool
	Resolution  grabframe.Resolution
	FPS         float64
}

// Geometry is the timing window for one resolution.
type Geometry struct {
	XStart, XEnd  int
	YStart, YEnd  int
	Width, Height int
	TotalH        int
	TotalV        int
}

// baselineGeometry is 640x480 with 2x2 subsampling of the full array.
var baselineGeometry = Geometry{
	XStart: 0, XEnd: 2623,
	YStart: 4, YEnd: 1947,
	Width: 640, Height: 480,
	TotalH: 1896, TotalV: 984,
}

// FormatGeometry returns the window for res. Only the baseline has been
// verified. Other known resolutions change the output size over the
// baseline window; unknown ones get the baseline unchanged.
func FormatGeometry(res grabframe.Resolution) Geometry {
	g := baselineGeometry
	if res.Known() {
		g.Width, g.Height = res.Dimensions()
	}
	return g
}

// MaxFPS is the highest frame rate whose PLL multiplier fits the
// register.
const MaxFPS = 273

// PLLMultiplier returns the PLL multiplier for a target frame rate. The
// 70/75 scale was measured at 640x480 and is not valid for any other
// resolution. fps must not exceed MaxFPS.
func PLLMultiplier(fps float64) uint8 {
	return uint8(math.Round(fps * 70 / 75))
}

// Configurator sequences register writes to put the sensor in a mode.
//
// Writes are fire-and-forget: a bus error is logged and counted but does
// not stop the sequence. With WithVerify every write is read back and
// Initialize reports the first mismatch.
type Configurator struct {
	s      *Sensor
	verify bool

	busErrors uint64
	verifyErr error
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithVerify enables read-back of every register write.
func WithVerify() Option {
	return func(c *Configurator) {
		c.verify = true
	}
}

// NewConfigurator returns a Configurator for s.
func NewConfigurator(s *Sensor, opts ...Option) *Configurator {
	c := &Configurator{s: s}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BusErrors returns how many register accesses have failed.
func (c *Configurator) BusErrors() uint64 {
	return atomic.LoadUint64(&c.busErrors)
}

// Reset asserts or releases the software reset bit.
func (c *Configurator) Reset(assert bool) {
	c.modify(regSystemCtrl0, systemCtrl0SoftwareReset, assert)
}

// SetPowerMode puts the sensor into or out of software power down.
func (c *Configurator) SetPowerMode(down bool) {
	c.modify(regSystemCtrl0, systemCtrl0SoftwarePowerDown, down)
}

// ApplyBaseConfig writes the settings common to every mode. The whole
// sequence is written each time.
func (c *Configurator) ApplyBaseConfig(testPattern bool) {
	for _, r := range baseConfig {
		c.write(r.addr, r.value)
	}
	if testPattern {
		c.write(regPreISPTest, preISPTestColorBar)
	} else {
		c.write(regPreISPTest, preISPTestDisable)
	}
	for _, r := range analogTail {
		c.write(r.addr, r.value)
	}
}

// ApplyFormat writes the PLL and timing registers for res at fps.
func (c *Configurator) ApplyFormat(res grabframe.Resolution, fps float64) {
	if !res.Known() {
		slog.Debug("ov5640: unknown resolution, using baseline", "resolution", int(res))
	}
	c.write(regPLLCtrl1, 0x21)
	c.write(regPLLMultiplier, PLLMultiplier(fps))
	c.write(regPLLCtrl3, 0x05)

	g := FormatGeometry(res)
	c.writeSplit(regXAddrStartHi, regXAddrStartLo, g.XStart, 0x0F)
	c.writeSplit(regYAddrStartHi, regYAddrStartLo, g.YStart, 0x0F)
	c.writeSplit(regXAddrEndHi, regXAddrEndLo, g.XEnd, 0x0F)
	c.writeSplit(regYAddrEndHi, regYAddrEndLo, g.YEnd, 0x0F)
	c.writeSplit(regOutWidthHi, regOutWidthLo, g.Width, 0x0F)
	c.writeSplit(regOutHeightHi, regOutHeightLo, g.Height, 0x07)
	c.writeSplit(regTotalHHi, regTotalHLo, g.TotalH, 0x1F)
	c.writeSplit(regTotalVHi, regTotalVLo, g.TotalV, 0xFF)

	// odd/even subsample increments
	c.write(regXInc, 0x62)
	c.write(regYInc, 0x62)
}

// Initialize powers the sensor down, replays the base configuration and
// format, then powers it back up. Without WithVerify it always returns
// nil.
func (c *Configurator) Initialize(cfg Config) error {
	c.verifyErr = nil
	c.SetPowerMode(true)
	c.ApplyBaseConfig(cfg.TestPattern)
	c.ApplyFormat(cfg.Resolution, cfg.FPS)
	c.SetPowerMode(false)
	slog.Info("ov5640: sensor configured",
		"resolution", cfg.Resolution,
		"fps", cfg.FPS,
		"test_pattern", cfg.TestPattern,
		"bus_errors", c.BusErrors())
	return c.verifyErr
}

func (c *Configurator) writeSplit(hi, lo uint16, v int, hiMask int) {
	c.write(hi, byte((v>>8)&hiMask))
	c.write(lo, byte(v&0xFF))
}

func (c *Configurator) modify(addr uint16, bit byte, set bool) {
	v, err := c.s.ReadRegister(addr)
	if err != nil {
		// Cannot read-modify-write without the current value.
		c.failed(err)
		return
	}
	if set {
		v |= bit
	} else {
		v &^= bit
	}
	c.write(addr, v)
}

func (c *Configurator) write(addr uint16, v byte) {
	if err := c.s.WriteRegister(addr, v); err != nil {
		c.failed(err)
		return
	}
	if !c.verify {
		return
	}
	got, err := c.s.ReadRegister(addr)
	if err != nil {
		c.failed(err)
		return
	}
	if got != v && c.verifyErr == nil {
		c.verifyErr = fmt.Errorf("register 0x%04X reads back 0x%02X, wrote 0x%02X", addr, got, v)
	}
}

func (c *Configurator) failed(err error) {
	atomic.AddUint64(&c.busErrors, 1)
	slog.Warn("ov5640: register access failed", "error", err)
	if c.verify && c.verifyErr == nil {
		c.verifyErr = err
	}
}
