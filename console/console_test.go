// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package console

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uvcgrab "github.com/TheCacophonyProject/go-uvcgrab"
)

func TestDecode(t *testing.T) {
	assert.Equal(t, Stop, Decode(0x1B))
	assert.Equal(t, NextPattern, Decode('\r'))
	assert.Equal(t, NextPattern, Decode('\n'))
	for _, b := range []byte("aqQ x\t\x00\x7f") {
		assert.Equal(t, None, Decode(b), "byte 0x%02x", b)
	}
}

func collect(ch <-chan Command) []Command {
	var out []Command
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestSerialDecodesStream(t *testing.T) {
	s := NewSerial(io.NopCloser(strings.NewReader("ab\rxy\r\x1bz")))
	assert.Equal(t, []Command{NextPattern, NextPattern, Stop}, collect(s.Commands()))
	assert.NoError(t, s.Close())
}

func TestSerialCloseUnblocksRead(t *testing.T) {
	r, w := io.Pipe()
	s := NewSerial(r)
	_, err := w.Write([]byte{'\r'})
	require.NoError(t, err)
	assert.Equal(t, NextPattern, <-s.Commands())

	done := make(chan error)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked")
	}
}

func TestServe(t *testing.T) {
	cmds := make(chan Command, 4)
	cmds <- NextPattern
	cmds <- NextPattern
	cmds <- Stop
	cmds <- NextPattern
	advanced := 0
	assert.True(t, Serve(context.Background(), cmds, func() { advanced++ }))
	assert.Equal(t, 2, advanced, "commands after Stop are not applied")

	closed := make(chan Command)
	close(closed)
	assert.False(t, Serve(context.Background(), closed, func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Serve(ctx, make(chan Command), func() {}))
}

func TestModelKeys(t *testing.T) {
	cmds := make(chan Command, 4)
	m := newModel(func() Status { return Status{} }, cmds)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, NextPattern, <-cmds)

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Empty(t, cmds, "other keys are ignored")

	next, cmd = next.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, Stop, <-cmds)
	assert.True(t, next.(model).stopped)
}

func TestModelView(t *testing.T) {
	status := Status{
		Stats: uvcgrab.Stats{
			State:      uvcgrab.StateStreaming,
			StreamID:   "f00d",
			FramesSent: 42,
			FID:        true,
		},
		Pattern: 3,
	}
	m := newModel(func() Status { return status }, make(chan Command, 1))
	next, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)

	view := next.View()
	assert.Contains(t, view, "streaming")
	assert.Contains(t, view, "f00d")
	assert.Contains(t, view, "42")
}
