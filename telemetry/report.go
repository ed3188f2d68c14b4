// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package telemetry publishes periodic stream statistics.
package telemetry

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	uvcgrab "github.com/TheCacophonyProject/go-uvcgrab"
)

// Report is one statistics sample, encoded as msgpack.
type Report struct {
	Device        string    `msgpack:"device"`
	Time          time.Time `msgpack:"time"`
	State         string    `msgpack:"state"`
	StreamID      string    `msgpack:"stream_id,omitempty"`
	FramesSent    uint64    `msgpack:"frames_sent"`
	FramesSkipped uint64    `msgpack:"frames_skipped"`
	FramesAborted uint64    `msgpack:"frames_aborted"`
	ChunksSent    uint64    `msgpack:"chunks_sent"`
	BytesSent     uint64    `msgpack:"bytes_sent"`
	FID           bool      `msgpack:"fid"`
	LastBank      string    `msgpack:"last_bank"`
	Pattern       uint32    `msgpack:"pattern"`
	SensorErrors  uint64    `msgpack:"sensor_errors"`
}

// NewReport fills a Report from engine statistics.
func NewReport(device string, now time.Time, s uvcgrab.Stats) Report {
	return Report{
		Device:        device,
		Time:          now.UTC(),
		State:         s.State.String(),
		StreamID:      s.StreamID,
		FramesSent:    s.FramesSent,
		FramesSkipped: s.FramesSkipped,
		FramesAborted: s.FramesAborted,
		ChunksSent:    s.ChunksSent,
		BytesSent:     s.BytesSent,
		FID:           s.FID,
		LastBank:      s.LastBank.String(),
	}
}

// Encode marshals r.
func Encode(r Report) ([]byte, error) {
	b, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return b, nil
}

// Decode unmarshals a report produced by Encode.
func Decode(b []byte) (Report, error) {
	var r Report
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return Report{}, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return r, nil
}
