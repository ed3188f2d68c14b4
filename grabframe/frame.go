// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package grabframe

import (
	"fmt"
	"sync"
)

// Banks holds the three frame buffer regions. Every region starts with
// HeaderMargin bytes reserved for a payload header, immediately followed
// by the frame area the capture engine writes into.
type Banks struct {
	regions [NumBanks][]byte
	owners  [NumBanks]sync.Mutex
	margin  int
}

// NewBanks allocates three regions on the heap, each able to hold
// frameCap bytes of frame data after the header margin.
func NewBanks(frameCap, headerMargin int) *Banks {
	var regions [NumBanks][]byte
	for i := range regions {
		regions[i] = make([]byte, headerMargin+frameCap)
	}
	return &Banks{regions: regions, margin: headerMargin}
}

// BanksFromRegions wraps regions that were mapped elsewhere, such as
// physical memory the capture engine DMAs into.
func BanksFromRegions(regions [NumBanks][]byte, headerMargin int) (*Banks, error) {
	size := len(regions[0])
	for i, r := range regions {
		if len(r) != size {
			return nil, fmt.Errorf("bank %s is %d bytes, bank A is %d", Bank(i), len(r), size)
		}
	}
	if size < headerMargin {
		return nil, fmt.Errorf("bank size %d smaller than header margin %d", size, headerMargin)
	}
	return &Banks{regions: regions, margin: headerMargin}, nil
}

// HeaderMargin returns the size of the reserved area preceding each frame.
func (b *Banks) HeaderMargin() int {
	return b.margin
}

// FrameCapacity returns the number of frame bytes a bank can hold.
func (b *Banks) FrameCapacity() int {
	return len(b.regions[0]) - b.margin
}

// Frame returns the frame area of a bank without claiming it.
func (b *Banks) Frame(bank Bank) []byte {
	return b.regions[bank][b.margin:]
}

// Acquire claims a bank for reading and returns a view over it. Writers
// that honour ownership (see TryClaim) skip the bank until Release.
func (b *Banks) Acquire(bank Bank) CapturedFrame {
	b.owners[bank].Lock()
	return CapturedFrame{Bank: bank, region: b.regions[bank], margin: b.margin}
}

// Release returns a bank acquired with Acquire.
func (b *Banks) Release(bank Bank) {
	b.owners[bank].Unlock()
}

// TryClaim claims a bank for writing if nobody holds it.
func (b *Banks) TryClaim(bank Bank) bool {
	return b.owners[bank].TryLock()
}

// CapturedFrame is a view over one bank for the duration of one drain.
type CapturedFrame struct {
	Bank   Bank
	region []byte
	margin int
}

// Data returns the frame area.
func (f CapturedFrame) Data() []byte {
	return f.region[f.margin:]
}

// WithHeader returns the bank starting headerSize bytes before the frame
// area, so the first payload header can be written in place.
func (f CapturedFrame) WithHeader(headerSize int) ([]byte, error) {
	if headerSize > f.margin {
		return nil, fmt.Errorf("header size %d exceeds bank header margin %d", headerSize, f.margin)
	}
	return f.region[f.margin-headerSize:], nil
}
