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
	"bytes"
	"compress/gzip"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/go-uvcgrab/fpga"
	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
)

func payload(fid bool, data ...byte) []byte {
	h, _ := NewPayloadHeader(MinHeaderSize)
	if fid {
		h.ToggleFID()
	}
	return append(append([]byte(nil), h...), data...)
}

func openRecording(t *testing.T, fs afero.Fs, name string) *Reader {
	f, err := fs.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	r, err := NewReader(f)
	require.NoError(t, err)
	return r
}

func TestWriterAndReader(t *testing.T) {
	fs := afero.NewMemMapFs()
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	w, err := NewWriter(fs, "out.uvcp", RecordingHeader{
		FrameSize:      5,
		MaxPayloadSize: 3,
		HeaderSize:     MinHeaderSize,
		Timestamp:      ts,
	})
	require.NoError(t, err)

	completions := 0
	w.OnComplete(func() { completions++ })
	for _, p := range [][]byte{
		payload(false, 1, 2, 3),
		payload(false, 4, 5),
		payload(true, 6, 7, 8),
		payload(true, 9, 10),
		payload(false, 11),
	} {
		require.NoError(t, w.SendPayload(p))
	}
	assert.Equal(t, 5, completions)
	assert.Equal(t, 5, w.Payloads())
	require.NoError(t, w.Close())
	assert.Error(t, w.SendPayload(payload(false)))

	r := openRecording(t, fs, "out.uvcp")
	assert.Equal(t, 1, r.Version())
	assert.Equal(t, 5, r.FrameSize())
	assert.Equal(t, 3, r.MaxPayloadSize())
	assert.True(t, ts.Equal(r.Timestamp()))

	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.False(t, f.FID)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, f.Data)
	assert.Equal(t, []int{3, 2}, f.Chunks)
	assert.True(t, f.Complete(r.FrameSize()))

	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.True(t, f.FID)
	assert.Equal(t, []byte{6, 7, 8, 9, 10}, f.Data)

	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{11}, f.Data)
	assert.False(t, f.Complete(r.FrameSize()))

	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestFrameCount(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := NewWriter(fs, "count.uvcp", RecordingHeader{FrameSize: 1, MaxPayloadSize: 1, HeaderSize: MinHeaderSize})
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		require.NoError(t, w.SendPayload(payload(i%2 == 1, byte(i))))
	}
	require.NoError(t, w.Close())

	n, err := openRecording(t, fs, "count.uvcp").FrameCount()
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestReaderRejectsBadRecordings(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not gzip")))
	assert.ErrorIs(t, err, ErrBadRecording)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("CPTV\x02"))
	gz.Close()
	_, err = NewReader(&buf)
	assert.ErrorIs(t, err, ErrBadRecording)

	buf.Reset()
	gz = gzip.NewWriter(&buf)
	b := NewBuilder(gz)
	require.NoError(t, b.WriteHeader(RecordingHeader{FrameSize: 4, MaxPayloadSize: 4, HeaderSize: 2}))
	gz.Write([]byte{10, 0, 0, 0, 2, 0x80}) // record cut short
	gz.Close()
	r, err := NewReader(&buf)
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, ErrBadRecording)
}

func TestBuilderRejectsHeaderSize(t *testing.T) {
	b := NewBuilder(io.Discard)
	assert.ErrorIs(t, b.WriteHeader(RecordingHeader{HeaderSize: 1}), ErrInvalidParams)
}

func TestEngineRecording(t *testing.T) {
	fs := afero.NewMemMapFs()
	params := StreamParams{FrameSize: 20, MaxPayloadSize: 6}
	w, err := NewWriter(fs, "engine.uvcp", RecordingHeader{
		FrameSize:      params.FrameSize,
		MaxPayloadSize: params.MaxPayloadSize,
		HeaderSize:     MinHeaderSize,
	})
	require.NoError(t, err)

	src := newFakeSource()
	e, err := NewEngine(src, w, Options{})
	require.NoError(t, err)
	require.NoError(t, e.Commit(params))
	e.Start()

	var sent [][]byte
	for i := 0; i < 4; i++ {
		data := frameData(params.FrameSize, byte(i*32))
		sent = append(sent, data)
		src.publish(grabframe.Bank(i%grabframe.NumBanks), data)
		require.Eventually(t, func() bool { return e.Stats().FramesSent == uint64(i+1) }, waitTime, tick)
	}
	require.NoError(t, e.Close())
	require.NoError(t, w.Close())

	r := openRecording(t, fs, "engine.uvcp")
	for i, want := range sent {
		f, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, i%2 == 1, f.FID, "frame %d", i)
		assert.Equal(t, want, f.Data, "frame %d", i)
		assert.Equal(t, ChunkSizes(params.FrameSize, params.MaxPayloadSize), f.Chunks)
	}
	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestSimulatedPipeline(t *testing.T) {
	const margin = 12
	res := grabframe.Res320x200

	dev := fpga.New(fpga.NewBlock(fpga.Span))
	banks := grabframe.NewBanks(res.FrameSize(), margin)
	dev.InitCapture(0x10000000, 0x10100000, 0x10200000)
	capture := fpga.NewCapture(dev, banks)
	sim := fpga.NewSimulator(dev.Registers(), banks, res, 30)

	fs := afero.NewMemMapFs()
	params := StreamParams{FrameSize: res.FrameSize(), MaxPayloadSize: 3072}
	w, err := NewWriter(fs, "sim.uvcp", RecordingHeader{
		FrameSize:      params.FrameSize,
		MaxPayloadSize: params.MaxPayloadSize,
		HeaderSize:     margin,
	})
	require.NoError(t, err)

	e, err := NewEngine(capture, w, Options{HeaderSize: margin, FrameTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, e.Commit(params))
	e.Start()

	const frames = 4
	for i := 0; i < frames; i++ {
		require.True(t, sim.Step())
		capture.HandleInterrupt()
		require.Eventually(t, func() bool { return e.Stats().FramesSent == uint64(i+1) }, waitTime, tick)
	}
	require.NoError(t, e.Close())
	require.NoError(t, w.Close())

	s := e.Stats()
	assert.Zero(t, s.FramesSkipped)
	assert.Equal(t, grabframe.BankA, s.LastBank, "fourth frame lands in bank A again")

	r := openRecording(t, fs, "sim.uvcp")
	want := make([]byte, res.FrameSize())
	for i := 0; i < frames; i++ {
		f, err := r.ReadFrame()
		require.NoError(t, err)
		require.True(t, f.Complete(r.FrameSize()), "frame %d", i)
		assert.Equal(t, i%2 == 1, f.FID)
		fpga.FillTestPattern(want, res, 0, uint32(i))
		assert.Equal(t, want, f.Data, "frame %d", i)
	}
}
