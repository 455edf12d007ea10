// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	config := NewDefault()

	require.NotNil(t, config)
	assert.False(t, config.Debug)
	assert.Equal(t, DefaultWorkerPort, config.BindPort)
	assert.Equal(t, 4096, config.PayloadMax)
	assert.Equal(t, ":8080", config.AdminAddr)
	assert.Greater(t, config.Timeout, time.Duration(0))
	assert.Positive(t, config.MaxRetries)
}

func TestConfigLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*testing.T, *Config)
	}{
		{
			name:    "bind port from environment",
			envVars: map[string]string{"GRIDWORK_BIND_PORT": "34000"},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, 34000, c.BindPort)
			},
		},
		{
			name:    "payload max from environment",
			envVars: map[string]string{"GRIDWORK_PAYLOAD_MAX": "8192"},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, 8192, c.PayloadMax)
			},
		},
		{
			name:    "admin addr from environment",
			envVars: map[string]string{"GRIDWORK_ADMIN_ADDR": "0.0.0.0:9090"},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, "0.0.0.0:9090", c.AdminAddr)
			},
		},
		{
			name:    "timeout from environment",
			envVars: map[string]string{"GRIDWORK_TIMEOUT": "60s"},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, 60*time.Second, c.Timeout)
			},
		},
		{
			name:    "max retries from environment",
			envVars: map[string]string{"GRIDWORK_MAX_RETRIES": "5"},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, 5, c.MaxRetries)
			},
		},
		{
			name:    "debug from environment",
			envVars: map[string]string{"GRIDWORK_DEBUG": "true"},
			expected: func(t *testing.T, c *Config) {
				assert.True(t, c.Debug)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			config := NewDefault()
			config.Load()

			require.NotNil(t, config)
			tt.expected(t, config)
		})
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectError bool
		expectedErr error
	}{
		{
			name: "valid config",
			config: &Config{
				BindPort:   33310,
				PayloadMax: 4096,
				Timeout:    30 * time.Second,
				MaxRetries: 3,
			},
			expectError: false,
		},
		{
			name: "invalid bind port",
			config: &Config{
				BindPort:   0,
				PayloadMax: 4096,
				Timeout:    30 * time.Second,
			},
			expectError: true,
			expectedErr: ErrInvalidBindPort,
		},
		{
			name: "bind port out of range",
			config: &Config{
				BindPort:   70000,
				PayloadMax: 4096,
				Timeout:    30 * time.Second,
			},
			expectError: true,
			expectedErr: ErrInvalidBindPort,
		},
		{
			name: "invalid payload max",
			config: &Config{
				BindPort:   33310,
				PayloadMax: 0,
				Timeout:    30 * time.Second,
			},
			expectError: true,
			expectedErr: ErrInvalidPayloadMax,
		},
		{
			name: "invalid timeout",
			config: &Config{
				BindPort:   33310,
				PayloadMax: 4096,
				Timeout:    -1 * time.Second,
			},
			expectError: true,
			expectedErr: ErrInvalidTimeout,
		},
		{
			name: "invalid max retries",
			config: &Config{
				BindPort:   33310,
				PayloadMax: 4096,
				Timeout:    30 * time.Second,
				MaxRetries: -1,
			},
			expectError: true,
			expectedErr: ErrInvalidMaxRetries,
		},
		{
			name: "zero max retries is valid",
			config: &Config{
				BindPort:   33310,
				PayloadMax: 4096,
				Timeout:    30 * time.Second,
				MaxRetries: 0,
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.expectError {
				assert.Error(t, err)
				if tt.expectedErr != nil {
					assert.Equal(t, tt.expectedErr, err)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func writeWorkerConfig(t *testing.T, dir, hostname string, wc WorkerConfig) {
	t.Helper()
	data, err := json.Marshal(wc)
	require.NoError(t, err)
	path := filepath.Join(dir, hostname+"-slave-config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadWorkerConfig_DefaultsPort(t *testing.T) {
	dir := t.TempDir()
	writeWorkerConfig(t, dir, "node1", WorkerConfig{
		Masters: []MasterEntry{{Hostname: "master1", IP: "10.0.0.1"}},
	})

	wc, err := LoadWorkerConfig(dir, "node1")
	require.NoError(t, err)
	require.Len(t, wc.Masters, 1)
	assert.Equal(t, DefaultWorkerPort, wc.Masters[0].Port)
	assert.Equal(t, "10.0.0.1", wc.Masters[0].IP)
}

func TestLoadWorkerConfig_KeepsExplicitPort(t *testing.T) {
	dir := t.TempDir()
	writeWorkerConfig(t, dir, "node1", WorkerConfig{
		Masters: []MasterEntry{{Hostname: "master1", IP: "10.0.0.1", Port: 40000}},
	})

	wc, err := LoadWorkerConfig(dir, "node1")
	require.NoError(t, err)
	assert.Equal(t, 40000, wc.Masters[0].Port)
}

func TestLoadWorkerConfig_ResolvesMissingIP(t *testing.T) {
	dir := t.TempDir()
	writeWorkerConfig(t, dir, "node1", WorkerConfig{
		Masters: []MasterEntry{{Hostname: "localhost"}},
	})

	wc, err := LoadWorkerConfig(dir, "node1")
	require.NoError(t, err)

	addrs, lookupErr := net.LookupHost("localhost")
	require.NoError(t, lookupErr)
	assert.Contains(t, addrs, wc.Masters[0].IP)
}

func TestLoadWorkerConfig_UnresolvableHostname(t *testing.T) {
	dir := t.TempDir()
	writeWorkerConfig(t, dir, "node1", WorkerConfig{
		Masters: []MasterEntry{{Hostname: "no-such-host.invalid"}},
	})

	_, err := LoadWorkerConfig(dir, "node1")
	assert.Error(t, err)
}

func TestLoadWorkerConfig_MissingFile(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadWorkerConfig(dir, "missing-node")
	assert.Error(t, err)
}

func TestLoadWorkerConfig_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node1-slave-config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadWorkerConfig(dir, "node1")
	assert.Error(t, err)
}
