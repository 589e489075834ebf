// File: server/config.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"os"
	"time"

	"github.com/momentics/webs/protocol"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables of one server.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	MaxPacket       int           `yaml:"max_packet"`       // handshake request bound
	MaxMessageSize  int64         `yaml:"max_message_size"` // reassembled message bound
	MaxConnections  int           `yaml:"max_connections"`  // 0 = unlimited
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // per frame, 0 = none
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // per frame, 0 = none
	ReusePort       bool          `yaml:"reuse_port"`
	StrictHandshake bool          `yaml:"strict_handshake"`
}

// DefaultConfig returns a baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		MaxPacket:      protocol.DefaultMaxPacket,
		MaxMessageSize: 32 << 20,
		WriteTimeout:   10 * time.Second,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("config: listen_addr is empty")
	case c.MaxPacket < 64:
		return fmt.Errorf("config: max_packet %d too small", c.MaxPacket)
	case c.MaxConnections < 0:
		return fmt.Errorf("config: max_connections must not be negative")
	case c.ReadTimeout < 0 || c.WriteTimeout < 0:
		return fmt.Errorf("config: timeouts must not be negative")
	}
	return nil
}
