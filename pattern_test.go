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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheCacophonyProject/go-uvcgrab/fpga"
)

func TestNextTestPatternCycles(t *testing.T) {
	want := []uint32{1, 2, 3, 4, 5, 0, 1}
	p := uint32(0)
	for i, w := range want {
		p = NextTestPattern(p)
		assert.Equal(t, w, p, "step %d", i)
	}
	assert.Equal(t, uint32(0), NextTestPattern(99))
}

func TestPatternSelectorDrivesDevice(t *testing.T) {
	dev := fpga.New(fpga.NewBlock(fpga.Span))
	sel := NewPatternSelector(dev)

	for i := 0; i < 2*NumTestPatterns; i++ {
		got := sel.Advance()
		assert.Less(t, got, uint32(NumTestPatterns))
		assert.Equal(t, got, dev.PatternSelect())
		assert.Equal(t, got, sel.Current())
	}
	assert.Equal(t, uint32(0), sel.Current(), "twelve steps return to the start")
}
