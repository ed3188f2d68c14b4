// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package fpga drives the capture engine: a MIPI CSI receiver and frame
// grabber pair per stereo channel, DMAing frames into a triple buffer.
package fpga

import (
	"log/slog"

	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
)

// Device is the register interface of the capture engine.
//
// Register writes have no acknowledgement. A write that did not take
// effect shows up only indirectly: the active bank never changes, or
// ReadVersion returns 0.
type Device struct {
	regs *Block
}

// New returns a Device over an already mapped register block.
func New(regs *Block) *Device {
	return &Device{regs: regs}
}

// Open maps the capture engine registers at base.
func Open(base uint64) (*Device, error) {
	regs, err := MapBlock(base, Span)
	if err != nil {
		return nil, err
	}
	return New(regs), nil
}

// Registers exposes the underlying block.
func (d *Device) Registers() *Block {
	return d.regs
}

// ReadVersion returns the capture engine version. Zero means the
// bitstream is not loaded.
func (d *Device) ReadVersion() uint32 {
	return d.regs.Read32(RegVersion)
}

// ReadActiveBank returns the bank holding the most recently completed
// frame. It is read from Status[9:8] of the left grabber.
func (d *Device) ReadActiveBank() grabframe.Bank {
	raw := d.regs.Reg(grbReg(Left, grbStatus)).Field(activeBankShift, activeBankMask)
	return grabframe.BankFromIndex(raw)
}

// InitCapture programs the triple buffer addresses into both grabbers
// and starts continuous capture. DMA into the banks begins immediately
// and there is no stop.
//
// Addresses and triggers are written before any control bit.
func (d *Device) InitCapture(bankA, bankB, bankC uint32) {
	d.regs.Write32(RegInterruptEnable, IntrGrabberLeft)
	for _, ch := range Channels {
		d.regs.Write32(grbReg(ch, grbAddressA), bankA)
		d.regs.Write32(grbReg(ch, grbAddressB), bankB)
		d.regs.Write32(grbReg(ch, grbAddressC), bankC)
		d.regs.Write32(grbReg(ch, grbTrigger), 1)
	}
	d.regs.Write32(RegArbControl, 1)
	for _, ch := range Channels {
		d.regs.Write32(grbReg(ch, grbControl), 1)
	}
	slog.Info("fpga: capture started",
		"version", d.ReadVersion(),
		"bank_a", bankA, "bank_b", bankB, "bank_c", bankC)
}

// PatternSelect returns the CSI test pattern selector of the left channel.
func (d *Device) PatternSelect() uint32 {
	return d.regs.Read32(csiReg(Left, csiPatternSelect))
}

// SetPatternSelect writes the test pattern selector of both channels.
func (d *Device) SetPatternSelect(p uint32) {
	for _, ch := range Channels {
		d.regs.Write32(csiReg(ch, csiPatternSelect), p)
	}
}

// FrameCount returns the number of frames received on a CSI channel.
func (d *Device) FrameCount(ch Channel) uint32 {
	return d.regs.Read32(csiReg(ch, csiFrameCount))
}

// Close releases the register mapping.
func (d *Device) Close() error {
	return d.regs.Close()
}
