// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package fpga

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUIO hands out one interrupt count per value sent on irq.
type fakeUIO struct {
	irq     chan uint32
	closed  chan struct{}
	once    sync.Once
	unmasks atomic.Int32
	eof     bool
}

func newFakeUIO() *fakeUIO {
	return &fakeUIO{irq: make(chan uint32), closed: make(chan struct{})}
}

func (f *fakeUIO) Read(p []byte) (int, error) {
	if f.eof {
		return 0, io.EOF
	}
	select {
	case n := <-f.irq:
		binary.LittleEndian.PutUint32(p, n)
		return 4, nil
	case <-f.closed:
		return 0, os.ErrClosed
	}
}

func (f *fakeUIO) Write(p []byte) (int, error) {
	if len(p) == 4 && binary.LittleEndian.Uint32(p) == 1 {
		f.unmasks.Add(1)
	}
	return len(p), nil
}

func (f *fakeUIO) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestUIODeliversInterrupts(t *testing.T) {
	dev := newFakeUIO()
	u := newUIO(dev)
	var calls atomic.Int32
	u.Start(func() { calls.Add(1) })

	for i := uint32(1); i <= 3; i++ {
		dev.irq <- i
	}
	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, dev.unmasks.Load(), int32(3), "interrupt re-armed before every wait")
	assert.NoError(t, u.Close())
}

func TestUIOReportsDeviceFailure(t *testing.T) {
	dev := newFakeUIO()
	dev.eof = true
	u := newUIO(dev)
	u.Start(func() { t.Error("no interrupt expected") })
	require.Eventually(t, func() bool {
		select {
		case <-u.t.Dead():
			return true
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)
	assert.Error(t, u.Close())
}

func TestUIOCloseWithoutStart(t *testing.T) {
	assert.NoError(t, newUIO(newFakeUIO()).Close())
}
