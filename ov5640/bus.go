// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ov5640

import (
	"fmt"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
)

// Conn is a half-duplex connection to a single bus device.
// *i2c.Dev satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// Sensor gives byte-wide access to the sensor's 16-bit register space.
// Any I2C multiplexer in front of the sensor must already be switched to
// the right channel.
type Sensor struct {
	c Conn
}

// NewSensor returns a Sensor talking over c.
func NewSensor(c Conn) *Sensor {
	return &Sensor{c: c}
}

// OpenBus opens a named I2C bus (empty name for the first one) and
// returns the sensor at addr on it. The caller closes the bus.
func OpenBus(name string, addr uint16) (*Sensor, i2c.BusCloser, error) {
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open i2c bus %q: %w", name, err)
	}
	return NewSensor(&i2c.Dev{Bus: bus, Addr: addr}), bus, nil
}

// ReadRegister reads one register: an address write then a 1-byte read.
func (s *Sensor) ReadRegister(addr uint16) (byte, error) {
	if err := s.c.Tx([]byte{byte(addr >> 8), byte(addr)}, nil); err != nil {
		return 0, fmt.Errorf("failed to address register 0x%04X: %w", addr, err)
	}
	v := make([]byte, 1)
	if err := s.c.Tx(nil, v); err != nil {
		return 0, fmt.Errorf("failed to read register 0x%04X: %w", addr, err)
	}
	return v[0], nil
}

// WriteRegister writes one register: the address with the value appended.
func (s *Sensor) WriteRegister(addr uint16, value byte) error {
	if err := s.c.Tx([]byte{byte(addr >> 8), byte(addr), value}, nil); err != nil {
		return fmt.Errorf("failed to write register 0x%04X: %w", addr, err)
	}
	return nil
}
