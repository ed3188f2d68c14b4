// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package config loads the uvcgrabd configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	uvcgrab "github.com/TheCacophonyProject/go-uvcgrab"
	"github.com/TheCacophonyProject/go-uvcgrab/grabframe"
	"github.com/TheCacophonyProject/go-uvcgrab/ov5640"
)

// DefaultPath is where uvcgrabd looks for its configuration.
const DefaultPath = "/etc/uvcgrab.yaml"

// FPGA modes.
const (
	ModeMMIO = "mmio"
	ModeSim  = "sim"
)

// Console modes.
const (
	ConsoleNone   = "none"
	ConsoleSerial = "serial"
	ConsoleTUI    = "tui"
)

// Config is the complete daemon configuration.
type Config struct {
	DeviceName string          `yaml:"device_name"`
	Sensor     SensorConfig    `yaml:"sensor"`
	FPGA       FPGAConfig      `yaml:"fpga"`
	Stream     StreamConfig    `yaml:"stream"`
	Output     OutputConfig    `yaml:"output"`
	Console    ConsoleConfig   `yaml:"console"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Log        LogConfig       `yaml:"log"`
}

// SensorConfig selects the sensor mode and where to reach it.
type SensorConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Bus          string  `yaml:"i2c_bus"` // empty for the first bus
	Address      uint16  `yaml:"address"`
	TestPattern  bool    `yaml:"test_pattern"`
	Resolution   string  `yaml:"resolution"` // WxH
	FPS          float64 `yaml:"fps"`
	VerifyWrites bool    `yaml:"verify_writes"`
}

// FPGAConfig locates the capture engine.
type FPGAConfig struct {
	Mode          string    `yaml:"mode"` // mmio or sim
	Base          uint64    `yaml:"base"`
	BankAddresses [3]uint64 `yaml:"bank_addresses"`
	UIODevice     string    `yaml:"uio_device"`
}

// StreamConfig holds the payload framing values.
type StreamConfig struct {
	MaxPayload      int           `yaml:"max_payload"`
	HeaderSize      int           `yaml:"header_size"`
	FrameTimeout    time.Duration `yaml:"frame_timeout"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"`
}

// OutputConfig is where the payload stream is recorded.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// ConsoleConfig selects the operator console.
type ConsoleConfig struct {
	Mode string `yaml:"mode"` // none, serial or tui
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// TelemetryConfig controls statistics publishing.
type TelemetryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"` // host:port
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig sets up the default logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		DeviceName: "uvcgrab",
		Sensor: SensorConfig{
			Enabled:    true,
			Address:    0x3C,
			Resolution: "640x480",
			FPS:        30,
		},
		FPGA: FPGAConfig{
			Mode:          ModeMMIO,
			Base:          0x43C00000,
			BankAddresses: [3]uint64{0x10000000, 0x10400000, 0x10800000},
			UIODevice:     "/dev/uio0",
		},
		Stream: StreamConfig{
			MaxPayload: 16 * 1024,
			HeaderSize: 12,
		},
		Output: OutputConfig{
			Path: "/var/spool/uvcgrab/stream.uvcp",
		},
		Console: ConsoleConfig{
			Mode: ConsoleNone,
			Baud: 115200,
		},
		Telemetry: TelemetryConfig{
			Interval: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return errors.New("device_name is required")
	}
	if _, ok := grabframe.ParseResolution(c.Sensor.Resolution); !ok {
		slog.Warn("config: unknown sensor resolution, using baseline",
			"resolution", c.Sensor.Resolution, "baseline", grabframe.Baseline)
	}
	if c.Sensor.FPS <= 0 || c.Sensor.FPS > ov5640.MaxFPS {
		return fmt.Errorf("sensor.fps must be in (0, %d]", ov5640.MaxFPS)
	}

	switch c.FPGA.Mode {
	case ModeSim:
	case ModeMMIO:
		if c.FPGA.Base == 0 {
			return errors.New("fpga.base is required in mmio mode")
		}
		for i, a := range c.FPGA.BankAddresses {
			if a == 0 {
				return fmt.Errorf("fpga.bank_addresses[%d] is required in mmio mode", i)
			}
		}
	default:
		return fmt.Errorf("fpga.mode must be %s or %s, got %q", ModeMMIO, ModeSim, c.FPGA.Mode)
	}

	if c.Stream.HeaderSize < uvcgrab.MinHeaderSize || c.Stream.HeaderSize > uvcgrab.MaxHeaderSize {
		return fmt.Errorf("stream.header_size must be %d..%d", uvcgrab.MinHeaderSize, uvcgrab.MaxHeaderSize)
	}
	if c.Stream.MaxPayload <= 0 {
		return errors.New("stream.max_payload must be > 0")
	}
	if c.Stream.FrameTimeout < 0 || c.Stream.TransferTimeout < 0 {
		return errors.New("stream timeouts must not be negative")
	}

	if c.Output.Path == "" {
		return errors.New("output.path is required")
	}

	switch c.Console.Mode {
	case ConsoleNone, ConsoleTUI:
	case ConsoleSerial:
		if c.Console.Port == "" {
			return errors.New("console.port is required for a serial console")
		}
		if c.Console.Baud <= 0 {
			return errors.New("console.baud must be > 0")
		}
	default:
		return fmt.Errorf("console.mode must be none, serial or tui, got %q", c.Console.Mode)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Broker == "" {
			return errors.New("telemetry.broker is required when telemetry is enabled")
		}
		if c.Telemetry.Interval <= 0 {
			return errors.New("telemetry.interval must be > 0")
		}
		if c.Telemetry.QoS > 2 {
			return errors.New("telemetry.qos must be 0, 1 or 2")
		}
		if c.Telemetry.Topic == "" {
			c.Telemetry.Topic = fmt.Sprintf("uvcgrab/%s/stats", c.DeviceName)
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Resolution returns the sensor resolution, or the baseline when the
// configured value is not a known resolution.
func (c *Config) Resolution() grabframe.Resolution {
	r, _ := grabframe.ParseResolution(c.Sensor.Resolution)
	return r
}

// SlogLevel parses the log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
