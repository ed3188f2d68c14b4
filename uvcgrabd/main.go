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

// uvcgrabd configures the sensor and capture engine, then streams captured
// frames in UVC payload framing until stopped from the console or by a
// signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"periph.io/x/periph/host"

	uvcgrab "github.com/TheCacophonyProject/go-uvcgrab"
	"github.com/TheCacophonyProject/go-uvcgrab/config"
	"github.com/TheCacophonyProject/go-uvcgrab/console"
	"github.com/TheCacophonyProject/go-uvcgrab/fpga"
	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
	"github.com/TheCacophonyProject/go-uvcgrab/ov5640"
	"github.com/TheCacophonyProject/go-uvcgrab/telemetry"
)

func main() {
	err := runMain()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type args struct {
	configPath string
	sim        bool
	logLevel   string
	console    string
}

func parseArgs() args {
	var a args
	flag.StringVar(&a.configPath, "config", config.DefaultPath, "path to configuration file")
	flag.BoolVar(&a.sim, "sim", false, "use the software capture engine instead of the FPGA")
	flag.StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	flag.StringVar(&a.console, "console", "", "override the console mode (none, serial, tui)")
	flag.Parse()
	return a
}

func loadConfig(fs afero.Fs, a args) (*config.Config, error) {
	cfg, err := config.Load(fs, a.configPath)
	if err != nil {
		return nil, err
	}
	if a.sim {
		cfg.FPGA.Mode = config.ModeSim
		cfg.Sensor.Enabled = false
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.console != "" {
		cfg.Console.Mode = a.console
	}
	return cfg, cfg.Validate()
}

func setupLogging(cfg config.LogConfig, w io.Writer) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func runMain() error {
	a := parseArgs()
	fs := afero.NewOsFs()
	cfg, err := loadConfig(fs, a)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(cfg.Output.Path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var logOut io.Writer = os.Stderr
	if cfg.Console.Mode == config.ConsoleTUI {
		// The terminal belongs to the UI.
		f, err := fs.OpenFile(cfg.Output.Path+".log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	if err := setupLogging(cfg.Log, logOut); err != nil {
		return err
	}

	if cfg.FPGA.Mode == config.ModeMMIO || cfg.Sensor.Enabled {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("failed to initialise host drivers: %w", err)
		}
	}

	res := cfg.Resolution()
	var sensorErrors func() uint64
	if cfg.Sensor.Enabled {
		c, closeBus, err := configureSensor(cfg.Sensor, res)
		if err != nil {
			return err
		}
		defer closeBus()
		sensorErrors = c.BusErrors
	}

	dev, banks, closeCapture, err := openCapture(cfg.FPGA, res, cfg.Stream.HeaderSize)
	if err != nil {
		return err
	}
	defer closeCapture()

	// The simulator sets up its registers before the capture engine is
	// programmed.
	irq, err := openInterrupts(cfg, dev, banks, res)
	if err != nil {
		return err
	}
	defer irq.Close()

	b := cfg.FPGA.BankAddresses
	dev.InitCapture(uint32(b[0]), uint32(b[1]), uint32(b[2]))
	capture := fpga.NewCapture(dev, banks)
	irq.Start(capture.HandleInterrupt)

	params := uvcgrab.StreamParams{FrameSize: res.FrameSize(), MaxPayloadSize: cfg.Stream.MaxPayload}
	w, err := uvcgrab.NewWriter(fs, cfg.Output.Path, uvcgrab.RecordingHeader{
		FrameSize:      params.FrameSize,
		MaxPayloadSize: params.MaxPayloadSize,
		HeaderSize:     cfg.Stream.HeaderSize,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	engine, err := uvcgrab.NewEngine(capture, w, uvcgrab.Options{
		HeaderSize:      cfg.Stream.HeaderSize,
		FrameTimeout:    cfg.Stream.FrameTimeout,
		TransferTimeout: cfg.Stream.TransferTimeout,
	})
	if err != nil {
		return err
	}
	engine.Start()
	defer engine.Close()
	if err := engine.Commit(params); err != nil {
		return err
	}

	selector := uvcgrab.NewPatternSelector(dev)

	if cfg.Telemetry.Enabled {
		stop := startTelemetry(cfg, engine, selector, sensorErrors)
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := openConsole(cfg.Console, engine, selector)
	if err != nil {
		return err
	}
	stopRequested := make(chan struct{})
	if src != nil {
		defer src.Close()
		go func() {
			if console.Serve(ctx, src.Commands(), func() { selector.Advance() }) {
				close(stopRequested)
			}
		}()
	}

	slog.Info("uvcgrabd: streaming",
		"resolution", res,
		"frame_size", params.FrameSize,
		"max_payload", params.MaxPayloadSize,
		"output", cfg.Output.Path)

	select {
	case <-ctx.Done():
		slog.Info("uvcgrabd: signal received")
	case <-stopRequested:
		slog.Info("uvcgrabd: stop requested from console")
	case <-engine.Dead():
	}
	engine.StopStream()
	if err := engine.Close(); err != nil {
		return fmt.Errorf("streaming failed: %w", err)
	}
	s := engine.Stats()
	slog.Info("uvcgrabd: stopped",
		"frames_sent", s.FramesSent,
		"frames_skipped", s.FramesSkipped,
		"frames_aborted", s.FramesAborted)
	return nil
}

func configureSensor(cfg config.SensorConfig, res grabframe.Resolution) (*ov5640.Configurator, func(), error) {
	sensor, bus, err := ov5640.OpenBus(cfg.Bus, cfg.Address)
	if err != nil {
		return nil, nil, err
	}
	var opts []ov5640.Option
	if cfg.VerifyWrites {
		opts = append(opts, ov5640.WithVerify())
	}
	c := ov5640.NewConfigurator(sensor, opts...)
	err = c.Initialize(ov5640.Config{
		TestPattern: cfg.TestPattern,
		Resolution:  res,
		FPS:         cfg.FPS,
	})
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("sensor configuration failed: %w", err)
	}
	return c, func() { bus.Close() }, nil
}

func openCapture(cfg config.FPGAConfig, res grabframe.Resolution, headerSize int) (*fpga.Device, *grabframe.Banks, func(), error) {
	if cfg.Mode == config.ModeSim {
		dev := fpga.New(fpga.NewBlock(fpga.Span))
		return dev, grabframe.NewBanks(res.FrameSize(), headerSize), func() { dev.Close() }, nil
	}
	dev, err := fpga.Open(cfg.Base)
	if err != nil {
		return nil, nil, nil, err
	}
	mapped, err := fpga.MapBanks(cfg.BankAddresses, res.FrameSize(), headerSize)
	if err != nil {
		dev.Close()
		return nil, nil, nil, err
	}
	return dev, mapped.Banks, func() {
		mapped.Close()
		dev.Close()
	}, nil
}

// interruptSource calls a handler for every completed capture.
type interruptSource interface {
	Start(handler func())
	Close() error
}

func openInterrupts(cfg *config.Config, dev *fpga.Device, banks *grabframe.Banks, res grabframe.Resolution) (interruptSource, error) {
	if cfg.FPGA.Mode == config.ModeSim {
		return fpga.NewSimulator(dev.Registers(), banks, res, cfg.Sensor.FPS), nil
	}
	uio, err := fpga.OpenUIO(cfg.FPGA.UIODevice)
	if err != nil {
		return nil, err
	}
	return uio, nil
}

func openConsole(cfg config.ConsoleConfig, engine *uvcgrab.Engine, selector *uvcgrab.PatternSelector) (console.Source, error) {
	switch cfg.Mode {
	case config.ConsoleSerial:
		return console.OpenSerial(cfg.Port, cfg.Baud)
	case config.ConsoleTUI:
		return console.NewTUI(func() console.Status {
			return console.Status{Stats: engine.Stats(), Pattern: selector.Current()}
		}), nil
	default:
		return nil, nil
	}
}

func startTelemetry(cfg *config.Config, engine *uvcgrab.Engine, selector *uvcgrab.PatternSelector, sensorErrors func() uint64) func() {
	sink, err := telemetry.DialMQTT(telemetry.MQTTConfig{
		Broker:   cfg.Telemetry.Broker,
		ClientID: cfg.DeviceName,
		Topic:    cfg.Telemetry.Topic,
		QoS:      cfg.Telemetry.QoS,
	})
	if err != nil {
		slog.Warn("uvcgrabd: telemetry disabled", "error", err)
		return func() {}
	}
	pub := telemetry.NewPublisher(sink, cfg.Telemetry.Interval, func(now time.Time) telemetry.Report {
		r := telemetry.NewReport(cfg.DeviceName, now, engine.Stats())
		r.Pattern = selector.Current()
		if sensorErrors != nil {
			r.SensorErrors = sensorErrors()
		}
		return r
	})
	return func() {
		pub.Close()
		sink.Close()
	}
}
