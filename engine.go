// Copyright 2026 The Cacophony Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package uvcgrab

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/tomb.v2"

	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
)

var (
	// ErrFrameTimeout is returned when no captured frame arrives within
	// Options.FrameTimeout.
	ErrFrameTimeout = errors.New("timed out waiting for a captured frame")

	// ErrTransferTimeout is returned when a payload transfer does not
	// complete within Options.TransferTimeout.
	ErrTransferTimeout = errors.New("timed out waiting for payload transfer")

	// ErrInvalidParams is returned for unusable stream parameters.
	ErrInvalidParams = errors.New("invalid stream parameters")

	errDying        = errors.New("engine stopping")
	errStateChanged = errors.New("stream state changed")
)

// TransferError reports a payload the transport refused.
type TransferError struct {
	Frame uint64 // frames completed before this one
	Chunk int    // index of the chunk within the frame
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("payload transfer failed at frame %d chunk %d: %v", e.Frame, e.Chunk, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// State of the video stream as negotiated by the device stack.
type State int32

const (
	StateIdle State = iota
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// StreamParams are the values committed by the host.
type StreamParams struct {
	FrameSize      int // dwMaxVideoFrameSize
	MaxPayloadSize int // bytes of frame data per payload, excluding header
}

func (p StreamParams) validate() error {
	if p.FrameSize <= 0 || p.MaxPayloadSize <= 0 {
		return fmt.Errorf("%w: frame size %d, max payload %d", ErrInvalidParams, p.FrameSize, p.MaxPayloadSize)
	}
	return nil
}

// FrameSource supplies completed frames.
type FrameSource interface {
	// Ready is signalled once per completed frame. Receiving clears it.
	Ready() <-chan struct{}
	// ActiveBank returns the bank holding the newest completed frame.
	ActiveBank() grabframe.Bank
	Acquire(bank grabframe.Bank) grabframe.CapturedFrame
	Release(bank grabframe.Bank)
}

// Transport hands payloads to the USB endpoint.
//
// SendPayload starts a transfer of buf and returns without waiting for
// it. The function registered with OnComplete is called once the
// transfer finishes, from any goroutine. buf must not be touched after
// completion.
type Transport interface {
	SendPayload(buf []byte) error
	OnComplete(func())
}

// Options tune an Engine.
type Options struct {
	// HeaderSize is the payload header length, at least MinHeaderSize and
	// at most the bank header margin.
	HeaderSize int
	// FrameTimeout bounds the wait for a captured frame. Zero waits forever.
	FrameTimeout time.Duration
	// TransferTimeout bounds the wait for a payload transfer. Zero waits
	// forever.
	TransferTimeout time.Duration
}

// Stats is a snapshot of engine counters.
type Stats struct {
	State         State
	StreamID      string
	FID           bool
	LastBank      grabframe.Bank
	FramesSent    uint64
	FramesAborted uint64
	FramesSkipped uint64
	ChunksSent    uint64
	BytesSent     uint64
}

type skipCounter interface {
	Skipped() uint64
}

// Engine drains captured frames to a Transport in UVC payload framing.
//
// A single goroutine runs the loop. It waits for the frame-ready signal,
// cuts the active bank into chunks of at most MaxPayloadSize bytes, writes
// the payload header in place immediately before each chunk, sends it and
// waits for the transfer to complete before moving on. The frame ID bit
// flips exactly once per frame, after its last chunk.
type Engine struct {
	src    FrameSource
	tr     Transport
	opts   Options
	header PayloadHeader // loop goroutine only

	mu       sync.Mutex
	state    State
	params   StreamParams
	streamID string
	changed  chan struct{}

	done chan struct{}

	fid           atomic.Bool
	lastBank      atomic.Int32
	framesSent    atomic.Uint64
	framesAborted atomic.Uint64
	chunksSent    atomic.Uint64
	bytesSent     atomic.Uint64

	t       tomb.Tomb
	started bool
}

// NewEngine returns an idle Engine. It registers its completion handler
// with tr.
func NewEngine(src FrameSource, tr Transport, opts Options) (*Engine, error) {
	if opts.HeaderSize == 0 {
		opts.HeaderSize = MinHeaderSize
	}
	header, err := NewPayloadHeader(opts.HeaderSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		src:     src,
		tr:      tr,
		opts:    opts,
		header:  header,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}, 1),
	}
	tr.OnComplete(e.transferComplete)
	return e, nil
}

// Start runs the loop in its own goroutine.
func (e *Engine) Start() {
	e.started = true
	e.t.Go(e.run)
}

// Close stops the loop and waits for it. It returns the error that
// stopped the loop, if any.
func (e *Engine) Close() error {
	if !e.started {
		return nil
	}
	e.t.Kill(nil)
	return e.t.Wait()
}

// Wait blocks until the loop exits and returns the error that stopped it.
func (e *Engine) Wait() error {
	if !e.started {
		return nil
	}
	return e.t.Wait()
}

// Dead is closed once the loop has exited.
func (e *Engine) Dead() <-chan struct{} {
	return e.t.Dead()
}

// Err returns the reason the loop stopped.
func (e *Engine) Err() error {
	return e.t.Err()
}

// Commit moves the engine to streaming with the parameters negotiated by
// the device stack. Committing while streaming replaces the parameters
// from the next frame on.
func (e *Engine) Commit(p StreamParams) error {
	if err := p.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.params = p
	e.state = StateStreaming
	e.streamID = uuid.NewString()
	id := e.streamID
	e.mu.Unlock()
	e.notify()

	slog.Info("uvcgrab: stream committed",
		"stream_id", id,
		"frame_size", p.FrameSize,
		"max_payload", p.MaxPayloadSize,
		"header_size", len(e.header))
	return nil
}

// StopStream returns the engine to idle. A frame already started is sent
// to the end first; no further frame is taken.
func (e *Engine) StopStream() {
	e.mu.Lock()
	was := e.state
	e.state = StateIdle
	id := e.streamID
	e.mu.Unlock()
	e.notify()
	if was == StateStreaming {
		slog.Info("uvcgrab: stream stopped", "stream_id", id)
	}
}

// State returns the current stream state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := Stats{State: e.state, StreamID: e.streamID}
	e.mu.Unlock()
	s.FID = e.fid.Load()
	s.LastBank = grabframe.Bank(e.lastBank.Load())
	s.FramesSent = e.framesSent.Load()
	s.FramesAborted = e.framesAborted.Load()
	s.ChunksSent = e.chunksSent.Load()
	s.BytesSent = e.bytesSent.Load()
	if sc, ok := e.src.(skipCounter); ok {
		s.FramesSkipped = sc.Skipped()
	}
	return s
}

func (e *Engine) notify() {
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// transferComplete is the transport's completion callback: the endpoint
// is no longer busy.
func (e *Engine) transferComplete() {
	select {
	case e.done <- struct{}{}:
	default:
	}
}

func (e *Engine) streaming() (StreamParams, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params, e.state == StateStreaming
}

func (e *Engine) run() error {
	for {
		if _, ok := e.streaming(); !ok {
			select {
			case <-e.t.Dying():
				return nil
			case <-e.changed:
			}
			continue
		}

		err := e.waitFrame()
		if err == nil {
			// Parameters committed while waiting apply to this frame.
			if params, ok := e.streaming(); ok {
				err = e.sendFrame(params)
			}
		}
		switch {
		case err == nil, errors.Is(err, errStateChanged):
		case errors.Is(err, errDying):
			return nil
		default:
			slog.Error("uvcgrab: streaming stopped", "error", err)
			return err
		}
	}
}

func (e *Engine) waitFrame() error {
	timeout, stop := deadline(e.opts.FrameTimeout)
	defer stop()
	select {
	case <-e.src.Ready():
		return nil
	case <-e.changed:
		return errStateChanged
	case <-e.t.Dying():
		return errDying
	case <-timeout:
		return ErrFrameTimeout
	}
}

func (e *Engine) waitTransfer() error {
	timeout, stop := deadline(e.opts.TransferTimeout)
	defer stop()
	select {
	case <-e.done:
		return nil
	case <-e.t.Dying():
		return errDying
	case <-timeout:
		return ErrTransferTimeout
	}
}

// dying is checked between chunks. A stop request does not cut a frame
// short; it takes effect at the next frame wait.
func (e *Engine) dying() error {
	select {
	case <-e.t.Dying():
		return errDying
	default:
		return nil
	}
}

// releaseAfterTransfer hands a bank back once the transport is done with
// the chunk it still holds, or after the transfer timeout.
func (e *Engine) releaseAfterTransfer(bank grabframe.Bank) {
	timeout, stop := deadline(e.opts.TransferTimeout)
	defer stop()
	select {
	case <-e.done:
	case <-timeout:
	}
	e.src.Release(bank)
}

func (e *Engine) sendFrame(p StreamParams) (err error) {
	bank := e.src.ActiveBank()
	frame := e.src.Acquire(bank)
	inFlight := false
	defer func() {
		if inFlight {
			go e.releaseAfterTransfer(bank)
			return
		}
		e.src.Release(bank)
	}()
	e.lastBank.Store(int32(bank))

	hs := len(e.header)
	buf, err := frame.WithHeader(hs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if len(buf) < hs+p.FrameSize {
		return fmt.Errorf("%w: frame size %d exceeds bank %s capacity %d", ErrInvalidParams, p.FrameSize, bank, len(buf)-hs)
	}

	sent := 0
	defer func() {
		// Once the receiver has seen any part of a frame, the next frame
		// must carry the other frame ID.
		if sent > 0 {
			e.header.ToggleFID()
			e.fid.Store(e.header.FID())
		}
		if err != nil && sent > 0 {
			e.framesAborted.Add(1)
		}
	}()

	cursor, remaining := 0, p.FrameSize
	for remaining > 0 {
		if err := e.dying(); err != nil {
			return err
		}
		n := min(remaining, p.MaxPayloadSize)
		chunk := buf[cursor : cursor+hs+n]
		copy(chunk, e.header)

		e.clearDone()
		if err := e.tr.SendPayload(chunk); err != nil {
			return &TransferError{Frame: e.framesSent.Load(), Chunk: sent, Err: err}
		}
		sent++
		inFlight = true
		if err := e.waitTransfer(); err != nil {
			return err
		}
		inFlight = false
		e.chunksSent.Add(1)
		e.bytesSent.Add(uint64(n))

		cursor += n
		remaining -= n
	}
	e.framesSent.Add(1)
	return nil
}

// clearDone drops a completion left over from before this transfer.
func (e *Engine) clearDone() {
	select {
	case <-e.done:
	default:
	}
}

func deadline(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
