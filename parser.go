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
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrBadRecording is returned for malformed stream recordings.
var ErrBadRecording = errors.New("bad stream recording")

// maxRecordLen bounds a single record so a corrupt length cannot
// allocate without limit.
const maxRecordLen = 1 << 24

// NewParser returns a Parser reading an uncompressed recording from r.
// The magic and version are checked immediately.
func NewParser(r io.Reader) (*Parser, error) {
	pre := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrBadRecording, err)
	}
	if string(pre[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadRecording, pre[:len(magic)])
	}
	if pre[len(magic)] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadRecording, pre[len(magic)])
	}
	return &Parser{r: r, version: int(pre[len(magic)])}, nil
}

// Parser handles the low-level parsing of recording sections. See Reader
// for a higher-level interface.
type Parser struct {
	r       io.Reader
	version int
	header  bool
}

// Header reads the header section. It must be called once, before
// Payload.
func (p *Parser) Header() (RecordingHeader, error) {
	if p.header {
		return RecordingHeader{}, errors.New("header already read")
	}
	buf := make([]byte, headerSectionLen)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return RecordingHeader{}, fmt.Errorf("%w: reading header: %v", ErrBadRecording, err)
	}
	p.header = true
	return RecordingHeader{
		FrameSize:      int(binary.LittleEndian.Uint32(buf[0:4])),
		MaxPayloadSize: int(binary.LittleEndian.Uint32(buf[4:8])),
		HeaderSize:     int(buf[8]),
		Timestamp:      time.Unix(0, int64(binary.LittleEndian.Uint64(buf[9:17]))),
	}, nil
}

// Payload returns the next payload record. io.EOF is returned at a clean
// end of the recording.
func (p *Parser) Payload() ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(p.r, n[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading record length: %v", ErrBadRecording, err)
	}
	size := binary.LittleEndian.Uint32(n[:])
	if size > maxRecordLen {
		return nil, fmt.Errorf("%w: record of %d bytes", ErrBadRecording, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(p.r, payload); err != nil {
		return nil, fmt.Errorf("%w: reading record: %v", ErrBadRecording, err)
	}
	return payload, nil
}
