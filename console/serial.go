// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package console

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.bug.st/serial"
	"gopkg.in/tomb.v2"
)

// Serial reads single-byte commands from a UART or any other byte stream.
type Serial struct {
	r    io.ReadCloser
	cmds chan Command
	t    tomb.Tomb
}

// OpenSerial opens a serial port at baud, 8N1.
func OpenSerial(portName string, baud int) (*Serial, error) {
	p, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open console port %q: %w", portName, err)
	}
	slog.Info("console: serial port open", "port", portName, "baud", baud)
	return NewSerial(p), nil
}

// NewSerial starts reading commands from r. The command channel is closed
// when r reaches EOF or fails.
func NewSerial(r io.ReadCloser) *Serial {
	s := &Serial{r: r, cmds: make(chan Command, 4)}
	s.t.Go(s.read)
	return s
}

// Commands returns the decoded commands. Bytes that are not commands are
// dropped.
func (s *Serial) Commands() <-chan Command {
	return s.cmds
}

func (s *Serial) read() error {
	defer close(s.cmds)
	buf := make([]byte, 1)
	for {
		n, err := s.r.Read(buf)
		if n == 1 {
			if c := Decode(buf[0]); c != None {
				select {
				case s.cmds <- c:
				case <-s.t.Dying():
					return nil
				}
			}
		}
		if err != nil {
			select {
			case <-s.t.Dying():
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("console read failed: %w", err)
		}
	}
}

// Close stops reading and closes the underlying stream.
func (s *Serial) Close() error {
	s.t.Kill(nil)
	cerr := s.r.Close()
	if err := s.t.Wait(); err != nil {
		return err
	}
	return cerr
}
