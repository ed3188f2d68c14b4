// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package console

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/tomb.v2"

	uvcgrab "github.com/TheCacophonyProject/go-uvcgrab"
)

const refreshInterval = 250 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	liveStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	idleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Status is what the terminal UI displays.
type Status struct {
	Stats   uvcgrab.Stats
	Pattern uint32
}

// TUI is a full-screen terminal console. ESC stops streaming and Enter
// advances the test pattern; the screen shows live stream counters.
type TUI struct {
	prog *tea.Program
	cmds chan Command
	t    tomb.Tomb
}

// NewTUI starts a terminal UI polling status for display. Program
// options select the terminal, which defaults to stdin/stdout.
func NewTUI(status func() Status, opts ...tea.ProgramOption) *TUI {
	cmds := make(chan Command, 4)
	u := &TUI{
		prog: tea.NewProgram(newModel(status, cmds), opts...),
		cmds: cmds,
	}
	u.t.Go(func() error {
		defer close(cmds)
		_, err := u.prog.Run()
		if err != nil && err != tea.ErrProgramKilled {
			return fmt.Errorf("console ui failed: %w", err)
		}
		return nil
	})
	return u
}

// Commands returns the commands entered by the operator.
func (u *TUI) Commands() <-chan Command {
	return u.cmds
}

// Close quits the UI and restores the terminal.
func (u *TUI) Close() error {
	u.prog.Quit()
	return u.t.Wait()
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	status  func() Status
	cmds    chan<- Command
	current Status
	rate    float64
	last    time.Time
	stopped bool
}

func newModel(status func() Status, cmds chan<- Command) model {
	return model{status: status, cmds: cmds, current: status()}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			m.send(Stop)
			m.stopped = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.send(NextPattern)
		}
	case tickMsg:
		now := time.Time(msg)
		next := m.status()
		if !m.last.IsZero() {
			if dt := now.Sub(m.last).Seconds(); dt > 0 {
				m.rate = float64(next.Stats.FramesSent-m.current.Stats.FramesSent) / dt
			}
		}
		m.current, m.last = next, now
		return m, tick()
	}
	return m, nil
}

func (m model) send(c Command) {
	select {
	case m.cmds <- c:
	default:
		slog.Warn("console: command dropped", "command", c)
	}
}

func (m model) View() string {
	s := m.current.Stats
	state := idleStyle.Render(s.State.String())
	if s.State == uvcgrab.StateStreaming {
		state = liveStyle.Render(s.State.String())
	}
	fid := 0
	if s.FID {
		fid = 1
	}
	rows := [][2]string{
		{"state", state},
		{"stream", s.StreamID},
		{"frames sent", fmt.Sprintf("%d (%.1f fps)", s.FramesSent, m.rate)},
		{"frames skipped", fmt.Sprint(s.FramesSkipped)},
		{"frames aborted", fmt.Sprint(s.FramesAborted)},
		{"chunks", fmt.Sprint(s.ChunksSent)},
		{"bytes", fmt.Sprint(s.BytesSent)},
		{"last bank", s.LastBank.String()},
		{"frame id", fmt.Sprint(fid)},
		{"test pattern", fmt.Sprint(m.current.Pattern)},
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), valueStyle.Render(r[1])))
		b.WriteByte('\n')
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("uvcgrab"),
		strings.TrimSuffix(b.String(), "\n"),
		helpStyle.Render("enter: next pattern • esc: stop"),
	)
	if m.stopped {
		return boxStyle.Render(body) + "\n"
	}
	return boxStyle.Render(body)
}
