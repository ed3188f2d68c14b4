// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package fpga

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/periph/host/pmem"

	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
)

// Capture is the frame source side of the pipeline. It owns the triple
// buffer and turns capture-complete interrupts into a frame-ready flag.
//
// The flag is a single slot: an interrupt arriving before the previous
// one was consumed overwrites it and counts as a skipped frame.
type Capture struct {
	dev   *Device
	banks *grabframe.Banks
	ready chan struct{}

	interrupts uint64
	skipped    uint64
}

// NewCapture returns a Capture reading banks under dev's control.
func NewCapture(dev *Device, banks *grabframe.Banks) *Capture {
	return &Capture{
		dev:   dev,
		banks: banks,
		ready: make(chan struct{}, 1),
	}
}

// HandleInterrupt raises the frame-ready flag. It never blocks and is
// safe to call from any goroutine.
func (c *Capture) HandleInterrupt() {
	atomic.AddUint64(&c.interrupts, 1)
	select {
	case c.ready <- struct{}{}:
	default:
		atomic.AddUint64(&c.skipped, 1)
	}
}

// Ready is signalled once per completed frame. Receiving clears the flag.
func (c *Capture) Ready() <-chan struct{} {
	return c.ready
}

// ActiveBank returns the bank holding the newest completed frame.
func (c *Capture) ActiveBank() grabframe.Bank {
	return c.dev.ReadActiveBank()
}

// Acquire claims a bank for the duration of one drain.
func (c *Capture) Acquire(bank grabframe.Bank) grabframe.CapturedFrame {
	return c.banks.Acquire(bank)
}

// Release hands a bank back.
func (c *Capture) Release(bank grabframe.Bank) {
	c.banks.Release(bank)
}

// Interrupts returns the number of capture-complete interrupts seen.
func (c *Capture) Interrupts() uint64 {
	return atomic.LoadUint64(&c.interrupts)
}

// Skipped returns the number of frames whose ready signal was
// overwritten before the consumer picked it up.
func (c *Capture) Skipped() uint64 {
	return atomic.LoadUint64(&c.skipped)
}

// MappedBanks is a triple buffer in physical memory.
type MappedBanks struct {
	*grabframe.Banks
	views []*pmem.View
}

// MapBanks maps the three frame regions at the given physical frame
// addresses. Each mapping starts headerMargin bytes before its address so
// the payload header can be embedded in front of the frame.
func MapBanks(addrs [grabframe.NumBanks]uint64, frameCap, headerMargin int) (*MappedBanks, error) {
	m := &MappedBanks{}
	var regions [grabframe.NumBanks][]byte
	for i, addr := range addrs {
		if addr < uint64(headerMargin) {
			m.Close()
			return nil, fmt.Errorf("bank %s address 0x%x leaves no room for a %d byte header", grabframe.Bank(i), addr, headerMargin)
		}
		v, err := pmem.Map(addr-uint64(headerMargin), headerMargin+frameCap)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to map bank %s: %w", grabframe.Bank(i), err)
		}
		m.views = append(m.views, v)
		regions[i] = v.Bytes()
	}
	banks, err := grabframe.BanksFromRegions(regions, headerMargin)
	if err != nil {
		m.Close()
		return nil, err
	}
	m.Banks = banks
	return m, nil
}

// Close unmaps every bank.
func (m *MappedBanks) Close() error {
	var errs []error
	for _, v := range m.views {
		errs = append(errs, v.Close())
	}
	m.views = nil
	return errors.Join(errs...)
}
