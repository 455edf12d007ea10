// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package config holds the environment-driven configuration for the
// master and worker commands, plus the worker-configuration-file
// loader that resolves a worker's master list at startup.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultWorkerPort is the port a master entry in a worker's
// configuration file resolves to when it omits one.
const DefaultWorkerPort = 33310

// Config holds the environment-driven settings shared by the master
// and worker commands.
type Config struct {
	// BindPort is the UDP port the local messenger binds.
	BindPort int

	// PayloadMax overrides the messenger's default fragment payload
	// size, in bytes.
	PayloadMax int

	// AdminAddr is the bind address for the master's admin HTTP
	// surface (REST + WebSocket).
	AdminAddr string

	// Timeout is the default request/dial timeout used by ambient
	// HTTP clients.
	Timeout time.Duration

	// MaxRetries bounds retryable operations that don't otherwise
	// specify their own backoff policy.
	MaxRetries int

	// Debug enables debug-level logging.
	Debug bool
}

// NewDefault returns a Config populated with sane defaults, further
// overridable via Load.
func NewDefault() *Config {
	return &Config{
		BindPort:   getEnvIntOrDefault("GRIDWORK_BIND_PORT", DefaultWorkerPort),
		PayloadMax: getEnvIntOrDefault("GRIDWORK_PAYLOAD_MAX", 4096),
		AdminAddr:  getEnvOrDefault("GRIDWORK_ADMIN_ADDR", ":8080"),
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Debug:      getEnvBoolOrDefault("GRIDWORK_DEBUG", false),
	}
}

// Load overrides the receiver's fields from environment variables,
// leaving fields with no corresponding variable untouched.
func (c *Config) Load() {
	c.BindPort = getEnvIntOrDefault("GRIDWORK_BIND_PORT", c.BindPort)
	c.PayloadMax = getEnvIntOrDefault("GRIDWORK_PAYLOAD_MAX", c.PayloadMax)
	c.AdminAddr = getEnvOrDefault("GRIDWORK_ADMIN_ADDR", c.AdminAddr)

	if timeout := os.Getenv("GRIDWORK_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Timeout = d
		}
	}

	c.MaxRetries = getEnvIntOrDefault("GRIDWORK_MAX_RETRIES", c.MaxRetries)
	c.Debug = getEnvBoolOrDefault("GRIDWORK_DEBUG", c.Debug)
}

// Validate checks the configuration for obviously unusable values.
func (c *Config) Validate() error {
	if c.BindPort <= 0 || c.BindPort > 65535 {
		return ErrInvalidBindPort
	}

	if c.PayloadMax <= 0 {
		return ErrInvalidPayloadMax
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	return nil
}

// MasterEntry is one master a worker may associate with, as read from
// its configuration file.
type MasterEntry struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// WorkerConfig is the document at config/<hostname>-slave-config.json.
type WorkerConfig struct {
	Masters []MasterEntry `json:"masters"`
}

// LoadWorkerConfig reads and resolves the worker configuration file
// for the given hostname from dir. A missing port defaults to
// DefaultWorkerPort; a missing ip is resolved via net.LookupHost.
// Failure to read or parse the file is fatal to the caller.
func LoadWorkerConfig(dir, hostname string) (*WorkerConfig, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s-slave-config.json", hostname))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading worker config %s: %w", path, err)
	}

	var wc WorkerConfig
	if err := json.Unmarshal(data, &wc); err != nil {
		return nil, fmt.Errorf("parsing worker config %s: %w", path, err)
	}

	for i := range wc.Masters {
		m := &wc.Masters[i]
		if m.Port == 0 {
			m.Port = DefaultWorkerPort
		}
		if m.IP == "" {
			addrs, err := net.LookupHost(m.Hostname)
			if err != nil || len(addrs) == 0 {
				return nil, fmt.Errorf("resolving master %q: %w", m.Hostname, err)
			}
			m.IP = addrs[0]
		}
	}

	return &wc, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
