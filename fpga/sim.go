// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package fpga

import (
	"log/slog"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
)

// SimulatorVersion is reported in the version register by the simulator.
const SimulatorVersion = 0x53494d01

// Simulator emulates the capture engine in software: once capture is
// enabled it fills the banks in rotation, publishes the active bank in
// Status[9:8] and raises the grabber interrupt, at a fixed frame rate.
//
// Unlike the hardware it never writes into a bank the consumer holds.
type Simulator struct {
	regs   *Block
	banks  *grabframe.Banks
	res    grabframe.Resolution
	period time.Duration

	mu    sync.Mutex
	next  grabframe.Bank
	frame uint32

	t       tomb.Tomb
	started bool
}

// NewSimulator returns a Simulator writing frames of resolution res into
// banks, driven by the registers in regs.
func NewSimulator(regs *Block, banks *grabframe.Banks, res grabframe.Resolution, fps float64) *Simulator {
	if fps <= 0 {
		fps = 30
	}
	regs.Write32(RegVersion, SimulatorVersion)
	for _, ch := range Channels {
		regs.Write32(csiReg(ch, csiFrameLength), uint32(res.FrameSize()))
	}
	return &Simulator{
		regs:   regs,
		banks:  banks,
		res:    res,
		period: time.Duration(float64(time.Second) / fps),
	}
}

// Step performs one capture pass. It returns true when a frame was
// written and the grabber interrupt is enabled.
func (s *Simulator) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	left := s.regs.Reg(grbReg(Left, grbControl))
	if left.Read()&1 == 0 || s.regs.Read32(grbReg(Left, grbTrigger))&1 == 0 {
		return false
	}

	bank, ok := s.claim()
	if !ok {
		return false
	}
	FillTestPattern(s.banks.Frame(bank), s.res, s.regs.Read32(csiReg(Left, csiPatternSelect)), s.frame)
	s.banks.Release(bank)

	s.frame++
	s.next = grabframe.Bank((int(bank) + 1) % grabframe.NumBanks)
	for _, ch := range Channels {
		s.regs.Reg(grbReg(ch, grbStatus)).SetField(activeBankShift, activeBankMask, uint32(bank))
		s.regs.Write32(csiReg(ch, csiFrameCount), s.frame)
	}
	s.regs.Write32(RegInterruptStatus, s.regs.Read32(RegInterruptStatus)|IntrGrabberLeft)
	return s.regs.Read32(RegInterruptEnable)&IntrGrabberLeft != 0
}

func (s *Simulator) claim() (grabframe.Bank, bool) {
	for i := 0; i < grabframe.NumBanks-1; i++ {
		bank := grabframe.Bank((int(s.next) + i) % grabframe.NumBanks)
		if s.banks.TryClaim(bank) {
			return bank, true
		}
	}
	return 0, false
}

// Start runs Step at the configured frame rate, calling irq whenever a
// frame completes.
func (s *Simulator) Start(irq func()) {
	s.started = true
	slog.Info("fpga: simulator running", "resolution", s.res, "period", s.period)
	s.t.Go(func() error {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-s.t.Dying():
				return nil
			case <-ticker.C:
				if s.Step() {
					irq()
				}
			}
		}
	})
}

// Close stops the simulator.
func (s *Simulator) Close() error {
	if !s.started {
		return nil
	}
	s.t.Kill(nil)
	return s.t.Wait()
}

// 75% colour bars in YUV: white, yellow, cyan, green, magenta, red, blue.
var barsYUV = [7][3]byte{
	{180, 128, 128},
	{162, 44, 142},
	{131, 156, 44},
	{112, 72, 58},
	{84, 184, 198},
	{65, 100, 212},
	{35, 212, 114},
}

// FillTestPattern writes one YUYV frame of pattern p (0..5) into buf.
func FillTestPattern(buf []byte, res grabframe.Resolution, p uint32, frame uint32) {
	w, h := res.Dimensions()
	if n := res.FrameSize(); len(buf) > n {
		buf = buf[:n]
	}
	stride := w * grabframe.BytesPerPixel
	for y := 0; y < h; y++ {
		row := y * stride
		if row+stride > len(buf) {
			return
		}
		for x := 0; x < w; x += 2 {
			luma, u, v := patternPixel(p, x, y, w, h, frame)
			i := row + x*grabframe.BytesPerPixel
			buf[i] = luma
			buf[i+1] = u
			buf[i+2] = luma
			buf[i+3] = v
		}
	}
}

func patternPixel(p uint32, x, y, w, h int, frame uint32) (luma, u, v byte) {
	switch p {
	case 1: // horizontal ramp
		return byte(16 + x*219/w), 128, 128
	case 2: // vertical ramp
		return byte(16 + y*219/h), 128, 128
	case 3: // checkerboard
		if (x/32+y/32)%2 == 0 {
			return 235, 128, 128
		}
		return 16, 128, 128
	case 4: // moving bar
		if (x+int(frame)*8)%w < w/8 {
			return 235, 128, 128
		}
		return 16, 128, 128
	case 5: // mid grey
		return 126, 128, 128
	default:
		bar := x * len(barsYUV) / w
		c := barsYUV[bar]
		return c[0], c[1], c[2]
	}
}
