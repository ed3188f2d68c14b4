// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package fpga

// Register space layout. Each block is a run of 32-bit registers.
const (
	comBase = 0x0000 // common functions
	arbBase = 0x1000 // DDR arbiter
	csiBase = 0x1100 // CSI interface, left then right
	grbBase = 0x1300 // frame grabber, left then right

	channelStride = 0x100

	// Span is the size of the register space in bytes.
	Span = 0x1500
)

// Common block.
const (
	RegVersion         = comBase + 0x00
	RegTestpad         = comBase + 0x04
	RegLED             = comBase + 0x08
	RegSwitch          = comBase + 0x0C
	RegTimer           = comBase + 0x10
	RegInterruptEnable = comBase + 0x14
	RegInterruptStatus = comBase + 0x18
	RegGPIO            = comBase + 0x1C
	RegSize            = comBase + 0x20
)

// Arbiter block.
const (
	RegArbControl = arbBase + 0x00
	RegArbStatus  = arbBase + 0x04
)

// Offsets within a CSI channel block.
const (
	csiControl       = 0x00
	csiStatus        = 0x04
	csiSize          = 0x08
	csiPatternSelect = 0x0C
	csiFrameLength   = 0x10
	csiFrameCount    = 0x14
)

// Offsets within a frame grabber channel block.
const (
	grbControl     = 0x00
	grbStatus      = 0x04
	grbAddressA    = 0x08
	grbAddressB    = 0x0C
	grbAddressC    = 0x10
	grbBurstLength = 0x14
	grbTrigger     = 0x18
)

// Bit fields.
const (
	CSIControlVRSTN = 0x00000001

	activeBankShift = 8
	activeBankMask  = 0x3

	IntrGrabberLeft  = 0x00000001
	IntrGrabberRight = 0x00000002
)

// Channel selects one side of the stereo capture path.
type Channel int

const (
	Left Channel = iota
	Right
)

// Channels lists both capture channels in initialisation order.
var Channels = []Channel{Left, Right}

func csiReg(ch Channel, off uint32) uint32 {
	return csiBase + uint32(ch)*channelStride + off
}

func grbReg(ch Channel, off uint32) uint32 {
	return grbBase + uint32(ch)*channelStride + off
}
