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
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Stream recording layout:
//
//	"UVCP" version
//	header:  frame size u32, max payload u32, header size u8, timestamp i64 (unix ns)
//	records: length u32, payload (header + chunk data)
//
// All integers are little endian. The whole file is gzip compressed.
const (
	magic   = "UVCP"
	version = byte(1)

	headerSectionLen = 4 + 4 + 1 + 8
)

// RecordingHeader describes the stream a recording was taken from.
type RecordingHeader struct {
	FrameSize      int
	MaxPayloadSize int
	HeaderSize     int
	Timestamp      time.Time
}

// NewBuilder returns a new Builder instance, ready to emit an
// uncompressed recording to the provided Writer.
func NewBuilder(w io.Writer) *Builder {
	return &Builder{w: w}
}

// Builder handles the low-level construction of recording sections. See
// Writer for a higher-level interface.
type Builder struct {
	w        io.Writer
	payloads int
}

// WriteHeader writes the magic, version and header section.
func (b *Builder) WriteHeader(h RecordingHeader) error {
	if h.HeaderSize < MinHeaderSize || h.HeaderSize > MaxHeaderSize {
		return fmt.Errorf("%w: header size %d", ErrInvalidParams, h.HeaderSize)
	}
	t := h.Timestamp
	if t.IsZero() {
		t = time.Now()
	}
	buf := make([]byte, 0, len(magic)+1+headerSectionLen)
	buf = append(buf, magic...)
	buf = append(buf, version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.FrameSize))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.MaxPayloadSize))
	buf = append(buf, byte(h.HeaderSize))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.UnixNano()))
	_, err := b.w.Write(buf)
	return err
}

// WritePayload writes one payload record.
func (b *Builder) WritePayload(payload []byte) error {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(payload)))
	if _, err := b.w.Write(n[:]); err != nil {
		return err
	}
	if _, err := b.w.Write(payload); err != nil {
		return err
	}
	b.payloads++
	return nil
}

// Payloads returns the number of payload records written.
func (b *Builder) Payloads() int {
	return b.payloads
}
