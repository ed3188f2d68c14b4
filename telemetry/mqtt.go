// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTConfig addresses the broker.
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTSink publishes reports to a single MQTT topic.
type MQTTSink struct {
	cfg       MQTTConfig
	client    mqtt.Client
	connected atomic.Bool
}

// DialMQTT connects to the broker. The client reconnects on its own
// after a lost connection.
func DialMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	s := &MQTTSink{cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		s.connected.Store(true)
		slog.Info("telemetry: mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.connected.Store(false)
		slog.Warn("telemetry: mqtt connection lost", "broker", cfg.Broker, "error", err)
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	s.connected.Store(true)
	return s, nil
}

// Publish sends payload to the configured topic.
func (s *MQTTSink) Publish(payload []byte) error {
	if !s.connected.Load() {
		return errors.New("mqtt not connected")
	}
	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt publish timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish failed: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.connected.Store(false)
	return nil
}
