// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"
)

// Sink receives encoded reports. *MQTTSink satisfies it.
type Sink interface {
	Publish(payload []byte) error
}

// Publisher samples a report on a fixed interval and sends it to a Sink.
// Failed publishes are logged and counted; they never stop the ticker.
type Publisher struct {
	sink     Sink
	sample   func(time.Time) Report
	interval time.Duration

	published atomic.Uint64
	failed    atomic.Uint64

	t tomb.Tomb
}

// NewPublisher starts publishing a sample every interval.
func NewPublisher(sink Sink, interval time.Duration, sample func(time.Time) Report) *Publisher {
	p := &Publisher{sink: sink, sample: sample, interval: interval}
	p.t.Go(p.run)
	return p
}

func (p *Publisher) run() error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.t.Dying():
			return nil
		case now := <-ticker.C:
			p.publish(now)
		}
	}
}

func (p *Publisher) publish(now time.Time) {
	payload, err := Encode(p.sample(now))
	if err == nil {
		err = p.sink.Publish(payload)
	}
	if err != nil {
		p.failed.Add(1)
		slog.Warn("telemetry: publish failed", "error", err)
		return
	}
	p.published.Add(1)
	slog.Debug("telemetry: report published", "size", len(payload))
}

// Published returns the number of reports delivered to the sink.
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// Failed returns the number of reports that could not be delivered.
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

// Close stops the ticker.
func (p *Publisher) Close() error {
	p.t.Kill(nil)
	return p.t.Wait()
}
