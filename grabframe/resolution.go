// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package grabframe

import "fmt"

// BytesPerPixel of the YUV422 (YUYV) output format.
const BytesPerPixel = 2

// Resolution selects the sensor output size.
type Resolution int

const (
	// Res640x480 is the baseline resolution and the only one whose
	// timing has been verified on hardware.
	Res640x480 Resolution = iota
	Res1920x1080
	Res1280x720
	Res960x540
	Res640x360
	Res320x240
	Res320x200
)

// Baseline is used wherever an unknown resolution is requested.
const Baseline = Res640x480

var dimensions = map[Resolution][2]int{
	Res640x480:   {640, 480},
	Res1920x1080: {1920, 1080},
	Res1280x720:  {1280, 720},
	Res960x540:   {960, 540},
	Res640x360:   {640, 360},
	Res320x240:   {320, 240},
	Res320x200:   {320, 200},
}

// Known reports whether r is a documented resolution.
func (r Resolution) Known() bool {
	_, ok := dimensions[r]
	return ok
}

// Dimensions returns the output width and height. Unknown values
// return the baseline size.
func (r Resolution) Dimensions() (width, height int) {
	d, ok := dimensions[r]
	if !ok {
		d = dimensions[Baseline]
	}
	return d[0], d[1]
}

// ResX returns the output width in pixels.
func (r Resolution) ResX() int {
	w, _ := r.Dimensions()
	return w
}

// ResY returns the output height in pixels.
func (r Resolution) ResY() int {
	_, h := r.Dimensions()
	return h
}

// FrameSize is the number of bytes in one captured frame.
func (r Resolution) FrameSize() int {
	w, h := r.Dimensions()
	return w * h * BytesPerPixel
}

func (r Resolution) String() string {
	if !r.Known() {
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
	w, h := r.Dimensions()
	return fmt.Sprintf("%dx%d", w, h)
}

// ParseResolution converts a "WxH" string to a Resolution. Strings that
// do not name a known resolution give the baseline and ok == false.
func ParseResolution(s string) (r Resolution, ok bool) {
	for res := range dimensions {
		if res.String() == s {
			return res, true
		}
	}
	return Baseline, false
}
