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

import "fmt"

// bmHeaderInfo bits.
const (
	HeaderFID = 0x01 // frame ID, toggles once per frame
	HeaderEOF = 0x02
	HeaderPTS = 0x04
	HeaderSCR = 0x08
	HeaderSTI = 0x20
	HeaderERR = 0x40
	HeaderEOH = 0x80
)

// MinHeaderSize is bHeaderLength plus bmHeaderInfo.
const MinHeaderSize = 2

// MaxHeaderSize is the largest length bHeaderLength can express.
const MaxHeaderSize = 255

// PayloadHeader is the UVC stream header copied in front of every
// chunk. Byte 0 is the header length and byte 1 the info bitmap; any
// further bytes (PTS, SCR) belong to the device stack and are copied
// verbatim.
type PayloadHeader []byte

// NewPayloadHeader returns a header of size bytes with EOH set and the
// frame ID clear.
func NewPayloadHeader(size int) (PayloadHeader, error) {
	if size < MinHeaderSize || size > MaxHeaderSize {
		return nil, fmt.Errorf("%w: header size %d outside %d..%d", ErrInvalidParams, size, MinHeaderSize, MaxHeaderSize)
	}
	h := make(PayloadHeader, size)
	h[0] = byte(size)
	h[1] = HeaderEOH
	return h, nil
}

// FID returns the frame ID bit.
func (h PayloadHeader) FID() bool {
	return h[1]&HeaderFID != 0
}

// ToggleFID flips the frame ID bit.
func (h PayloadHeader) ToggleFID() {
	h[1] ^= HeaderFID
}

// Len returns the header length.
func (h PayloadHeader) Len() int {
	return len(h)
}

// ParsePayloadHeader returns the header at the start of a received
// payload.
func ParsePayloadHeader(payload []byte) (PayloadHeader, error) {
	if len(payload) < MinHeaderSize {
		return nil, fmt.Errorf("%w: payload of %d bytes has no header", ErrBadRecording, len(payload))
	}
	n := int(payload[0])
	if n < MinHeaderSize || n > len(payload) {
		return nil, fmt.Errorf("%w: header length %d in payload of %d bytes", ErrBadRecording, n, len(payload))
	}
	return PayloadHeader(payload[:n]), nil
}

// ChunkSizes returns the payload sizes a frame is cut into: every chunk
// is maxPayload bytes except the last, which carries the remainder.
func ChunkSizes(frameSize, maxPayload int) []int {
	if frameSize <= 0 || maxPayload <= 0 {
		return nil
	}
	sizes := make([]int, 0, (frameSize+maxPayload-1)/maxPayload)
	for remaining := frameSize; remaining > 0; {
		n := min(remaining, maxPayload)
		sizes = append(sizes, n)
		remaining -= n
	}
	return sizes
}
