// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package console is the operator control surface: single-key commands
// read from a serial line or a terminal UI.
package console

import "context"

// Command is an operator request.
type Command int

const (
	None Command = iota
	Stop
	NextPattern
)

const (
	keyEsc = 0x1B
	keyCR  = 0x0D
	keyLF  = 0x0A
)

func (c Command) String() string {
	switch c {
	case Stop:
		return "stop"
	case NextPattern:
		return "next-pattern"
	default:
		return "none"
	}
}

// Decode maps one input byte to a command. ESC stops streaming and
// Enter (CR or LF) advances the test pattern. Anything else is None.
func Decode(b byte) Command {
	switch b {
	case keyEsc:
		return Stop
	case keyCR, keyLF:
		return NextPattern
	default:
		return None
	}
}

// Source delivers operator commands until it is closed.
type Source interface {
	Commands() <-chan Command
	Close() error
}

// Serve applies commands until Stop arrives, the command channel closes or
// ctx is done. advance is called for every NextPattern. It returns true
// when the operator asked to stop.
func Serve(ctx context.Context, cmds <-chan Command, advance func()) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case c, ok := <-cmds:
			if !ok {
				return false
			}
			switch c {
			case Stop:
				return true
			case NextPattern:
				advance()
			}
		}
	}
}
