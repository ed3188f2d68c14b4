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
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"time"
)

// NewReader returns a new Reader from the gzip compressed recording r.
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecording, err)
	}
	parser, err := NewParser(gz)
	if err != nil {
		return nil, err
	}
	header, err := parser.Header()
	if err != nil {
		return nil, err
	}
	return &Reader{parser: parser, header: header}, nil
}

// Reader reassembles frames from a recording the way a UVC host does: a
// frame ends where the frame ID bit changes.
type Reader struct {
	parser  *Parser
	header  RecordingHeader
	pending []byte
}

// Frame is one reassembled frame.
type Frame struct {
	FID    bool
	Data   []byte
	Chunks []int // payload data sizes, excluding headers
}

// Complete reports whether the frame carries exactly frameSize bytes.
func (f *Frame) Complete(frameSize int) bool {
	return len(f.Data) == frameSize
}

// Version returns the recording format version.
func (r *Reader) Version() int {
	return r.parser.version
}

// Header returns the recording header.
func (r *Reader) Header() RecordingHeader {
	return r.header
}

// FrameSize returns the negotiated frame size of the recorded stream.
func (r *Reader) FrameSize() int {
	return r.header.FrameSize
}

// MaxPayloadSize returns the negotiated maximum payload data size.
func (r *Reader) MaxPayloadSize() int {
	return r.header.MaxPayloadSize
}

// Timestamp returns when the recording was started.
func (r *Reader) Timestamp() time.Time {
	return r.header.Timestamp
}

// ReadFrame reads the next frame. At the end of the recording an io.EOF
// error will be returned.
func (r *Reader) ReadFrame() (*Frame, error) {
	var frame *Frame
	for {
		payload := r.pending
		r.pending = nil
		if payload == nil {
			var err error
			payload, err = r.parser.Payload()
			if err == io.EOF && frame != nil {
				return frame, nil
			}
			if err != nil {
				return nil, err
			}
		}
		h, err := ParsePayloadHeader(payload)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			frame = &Frame{FID: h.FID()}
		} else if h.FID() != frame.FID {
			r.pending = payload
			return frame, nil
		}
		data := payload[h.Len():]
		frame.Data = append(frame.Data, data...)
		frame.Chunks = append(frame.Chunks, len(data))
	}
}

// FrameCount returns the remaining number of frames in the recording.
// After this call, all remaining frames will have been consumed.
func (r *Reader) FrameCount() (int, error) {
	count := 0
	for {
		_, err := r.ReadFrame()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++
	}
}
