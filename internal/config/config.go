/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the SFU process's configuration, following the same
// environment-variable-or-path convention as the reference server this one
// is adapted from.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pionsfu/forwarder/internal/sfu"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the SFU process's top-level configuration.
type Config struct {
	// ListenAddress is where the WebSocket signalling server listens.
	ListenAddress string `yaml:"listenAddress"`
	// MetricsAddress is where the Prometheus /metrics endpoint listens. Empty disables it.
	MetricsAddress string `yaml:"metricsAddress"`
	// LogLevel is one of logrus's level names.
	LogLevel string `yaml:"log"`
	// Media configures the codec table and header extensions every Router uses.
	Media sfu.MediaConfig `yaml:"media"`
	// Transport configures the ICE servers and timeouts every transport uses.
	Transport sfu.WebRTCTransportConfig `yaml:"transport"`
	// Telemetry configures the Jaeger exporter. Empty JaegerURL disables tracing.
	Telemetry sfu.TelemetryConfig `yaml:"telemetry"`
}

// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
var ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")

// LoadConfig tries the CONFIG environment variable first, falling back to
// the file at path.
func LoadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}
		return LoadConfigFromPath(path)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads a config from the CONFIG environment variable.
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// LoadConfigFromPath loads a config from a YAML file at path.
func LoadConfigFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// LoadConfigFromString parses a config from a YAML string, filling in
// defaults for anything the caller left empty.
func LoadConfigFromString(configString string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(configString), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7880"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Media = sfu.NewMediaConfig(cfg.Media)

	defaultTransport := sfu.DefaultWebRTCTransportConfig()
	if len(cfg.Transport.Configuration.ICEServers) == 0 {
		cfg.Transport.Configuration.ICEServers = defaultTransport.Configuration.ICEServers
	}
	if cfg.Transport.ICEDisconnectedTimeout == 0 {
		cfg.Transport.ICEDisconnectedTimeout = defaultTransport.ICEDisconnectedTimeout
	}
	if cfg.Transport.ICEFailedTimeout == 0 {
		cfg.Transport.ICEFailedTimeout = defaultTransport.ICEFailedTimeout
	}
	if cfg.Transport.ICEKeepAliveInterval == 0 {
		cfg.Transport.ICEKeepAliveInterval = defaultTransport.ICEKeepAliveInterval
	}

	return &cfg, nil
}
