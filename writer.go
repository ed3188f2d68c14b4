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
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// NewWriter creates filename on fs and writes the recording header. The
// returned Writer is a Transport: every payload the engine sends is
// appended to the recording.
func NewWriter(fs afero.Fs, filename string, header RecordingHeader) (*Writer, error) {
	f, err := fs.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	bw := bufio.NewWriter(f)
	gz := gzip.NewWriter(bw)
	w := &Writer{
		f:    f,
		bw:   bw,
		gz:   gz,
		bldr: NewBuilder(gz),
	}
	if err := w.bldr.WriteHeader(header); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Writer uses a Builder to record a payload stream to a gzip compressed
// file.
type Writer struct {
	f    afero.File
	bw   *bufio.Writer
	gz   *gzip.Writer
	bldr *Builder

	mu         sync.Mutex
	onComplete func()
	closed     bool
}

// OnComplete registers the transfer-complete callback.
func (w *Writer) OnComplete(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onComplete = fn
}

// SendPayload records buf. The transfer completes before SendPayload
// returns.
func (w *Writer) SendPayload(buf []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("recording closed")
	}
	err := w.bldr.WritePayload(buf)
	done := w.onComplete
	w.mu.Unlock()
	if err != nil {
		return err
	}
	if done != nil {
		done()
	}
	return nil
}

// Payloads returns the number of payloads recorded.
func (w *Writer) Payloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bldr.Payloads()
}

// Close flushes and closes the recording.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.gz.Close()
	if ferr := w.bw.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}
