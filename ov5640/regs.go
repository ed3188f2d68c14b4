// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ov5640

// DefaultAddr is the 7-bit I2C address of the sensor.
const DefaultAddr = 0x3C

const (
	regSystemCtrl0 = 0x3008

	systemCtrl0SoftwareReset     = 0x80
	systemCtrl0SoftwarePowerDown = 0x40

	regPLLCtrl1      = 0x3035 // system clock divider, MIPI scale divider
	regPLLMultiplier = 0x3036
	regPLLCtrl3      = 0x3037 // PLL root divider, pre-divider

	regXAddrStartHi = 0x3800
	regXAddrStartLo = 0x3801
	regYAddrStartHi = 0x3802
	regYAddrStartLo = 0x3803
	regXAddrEndHi   = 0x3804
	regXAddrEndLo   = 0x3805
	regYAddrEndHi   = 0x3806
	regYAddrEndLo   = 0x3807
	regOutWidthHi   = 0x3808
	regOutWidthLo   = 0x3809
	regOutHeightHi  = 0x380A
	regOutHeightLo  = 0x380B
	regTotalHHi     = 0x380C
	regTotalHLo     = 0x380D
	regTotalVHi     = 0x380E
	regTotalVLo     = 0x380F
	regXInc         = 0x3814
	regYInc         = 0x3815

	regPreISPTest = 0x503D

	preISPTestColorBar = 0x80
	preISPTestDisable  = 0x00
)

type regValue struct {
	addr  uint16
	value byte
}

// baseConfig is replayed in order on every configuration change. The
// PLL and MIPI settings must latch before the format registers.
var baseConfig = []regValue{
	{0x302E, 0x08}, // undocumented, required
	{0x3034, 0x18}, // MIPI 8-bit mode
	{0x303D, 0x10}, // PLLS pre-divider
	{0x300E, 0x45}, // MIPI enable, 2-lane
	{0x3103, 0x03}, // system input clock from PLL
	{0x3108, 0x11}, // PCLK/SCLK root dividers
	{0x3406, 0x00}, // AWB auto
	{0x3821, 0x06}, // ISP mirror, sensor mirror
	{0x4300, 0x30}, // YUV422, YUYV
	{0x4800, 0x04}, // clock lane free running, LP11 idle
	{0x4837, 18},   // PCLK period, 9.0ns
	{0x5000, 0xD7}, // black/white pixel cancel, colour interpolation
	{0x5001, 0x03}, // colour matrix, AWB
	{0x501F, 0x00}, // ISP YUV422
}

// analogTail follows the test pattern selection. Without it the image
// is oversaturated.
var analogTail = []regValue{
	{0x3618, 0x00},
	{0x3612, 0x29},
	{0x3708, 0x64},
	{0x3709, 0x52},
	{0x370C, 0x03},
}
