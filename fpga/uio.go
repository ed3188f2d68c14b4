// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package fpga

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/tomb.v2"
)

// UIO delivers capture-complete interrupts from a Linux userspace I/O
// device such as /dev/uio0.
type UIO struct {
	f       io.ReadWriteCloser
	t       tomb.Tomb
	started bool
}

// OpenUIO opens the interrupt device.
func OpenUIO(path string) (*UIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open interrupt device: %w", err)
	}
	return newUIO(f), nil
}

func newUIO(f io.ReadWriteCloser) *UIO {
	return &UIO{f: f}
}

// Start calls handler once per interrupt until Close.
func (u *UIO) Start(handler func()) {
	u.started = true
	u.t.Go(func() error {
		return u.listen(handler)
	})
}

func (u *UIO) listen(handler func()) error {
	unmask := make([]byte, 4)
	binary.LittleEndian.PutUint32(unmask, 1)
	count := make([]byte, 4)
	for {
		if _, err := u.f.Write(unmask); err != nil {
			return u.stopped(fmt.Errorf("failed to unmask interrupt: %w", err))
		}
		if _, err := io.ReadFull(u.f, count); err != nil {
			return u.stopped(fmt.Errorf("failed to wait for interrupt: %w", err))
		}
		handler()
	}
}

// stopped swallows the error caused by Close unblocking the read.
func (u *UIO) stopped(err error) error {
	select {
	case <-u.t.Dying():
		return nil
	default:
		slog.Error("fpga: interrupt listener stopped", "error", err)
		return err
	}
}

// Close stops the listener and closes the device.
func (u *UIO) Close() error {
	u.t.Kill(nil)
	closeErr := u.f.Close()
	if u.started {
		if err := u.t.Wait(); err != nil {
			return err
		}
	}
	return closeErr
}
