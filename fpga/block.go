// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package fpga

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/periph/host/pmem"
)

// Block is a window of 32-bit device registers. All accesses go through
// sync/atomic so every load and store reaches the backing memory in
// program order.
type Block struct {
	words []uint32
	view  *pmem.View
}

// NewBlock returns a Block backed by ordinary memory. Used by the
// simulator and tests.
func NewBlock(size int) *Block {
	return &Block{words: make([]uint32, size/4)}
}

// MapBlock maps size bytes of physical memory starting at base.
func MapBlock(base uint64, size int) (*Block, error) {
	v, err := pmem.Map(base, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map registers at 0x%x: %w", base, err)
	}
	return &Block{words: v.Uint32(), view: v}, nil
}

// Read32 reads the register at byte offset off.
func (b *Block) Read32(off uint32) uint32 {
	return atomic.LoadUint32(&b.words[b.index(off)])
}

// Write32 writes the register at byte offset off.
func (b *Block) Write32(off, v uint32) {
	atomic.StoreUint32(&b.words[b.index(off)], v)
}

// Reg returns an accessor for a single register.
func (b *Block) Reg(off uint32) Reg32 {
	b.index(off)
	return Reg32{b: b, off: off}
}

// Close unmaps physical memory, if any.
func (b *Block) Close() error {
	if b.view == nil {
		return nil
	}
	err := b.view.Close()
	b.view = nil
	return err
}

func (b *Block) index(off uint32) int {
	if off%4 != 0 || int(off/4) >= len(b.words) {
		panic(fmt.Sprintf("fpga: register offset 0x%x outside block of %d bytes", off, len(b.words)*4))
	}
	return int(off / 4)
}

// Reg32 is a single 32-bit register.
type Reg32 struct {
	b   *Block
	off uint32
}

func (r Reg32) Read() uint32 {
	return r.b.Read32(r.off)
}

func (r Reg32) Write(v uint32) {
	r.b.Write32(r.off, v)
}

// Field extracts (value >> shift) & mask.
func (r Reg32) Field(shift, mask uint32) uint32 {
	return (r.Read() >> shift) & mask
}

// SetField replaces the bits selected by mask<<shift with v.
func (r Reg32) SetField(shift, mask, v uint32) {
	cur := r.Read() &^ (mask << shift)
	r.Write(cur | (v&mask)<<shift)
}
