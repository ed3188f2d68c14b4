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
	"log/slog"
	"sync"
)

// NumTestPatterns is the number of test-pattern selector values, 0..5.
const NumTestPatterns = 6

// NextTestPattern returns the selector after p, wrapping 5 to 0. Values
// outside the range also go back to 0.
func NextTestPattern(p uint32) uint32 {
	if p >= NumTestPatterns-1 {
		return 0
	}
	return p + 1
}

// PatternSwitch is the register pair holding the test-pattern selector.
// *fpga.Device satisfies it.
type PatternSwitch interface {
	PatternSelect() uint32
	SetPatternSelect(p uint32)
}

// PatternSelector cycles the test pattern independently of the streaming
// loop. A change lands on the next captured frame and never touches a
// frame already in flight.
type PatternSelector struct {
	mu sync.Mutex
	sw PatternSwitch
}

// NewPatternSelector returns a selector driving sw.
func NewPatternSelector(sw PatternSwitch) *PatternSelector {
	return &PatternSelector{sw: sw}
}

// Current returns the active selector value.
func (s *PatternSelector) Current() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sw.PatternSelect()
}

// Advance moves to the next pattern and returns it.
func (s *PatternSelector) Advance() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := NextTestPattern(s.sw.PatternSelect())
	s.sw.SetPatternSelect(next)
	slog.Info("uvcgrab: test pattern selected", "pattern", next)
	return next
}
