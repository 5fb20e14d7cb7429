/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LocalMemberURI != "tcp://127.0.0.1:7500" {
		t.Errorf("Expected default local_member_uri, got %s", cfg.LocalMemberURI)
	}
	if cfg.ElectionTimeout != 500*time.Millisecond {
		t.Errorf("Expected default election_timeout 500ms, got %s", cfg.ElectionTimeout)
	}
	if cfg.HeartbeatInterval != 250*time.Millisecond {
		t.Errorf("Expected default heartbeat_interval 250ms, got %s", cfg.HeartbeatInterval)
	}
	if cfg.ProtocolScheme != "tcp" {
		t.Errorf("Expected default protocol_scheme 'tcp', got '%s'", cfg.ProtocolScheme)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != false {
		t.Errorf("Expected default log_json false, got %v", cfg.LogJSON)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	base := func() *Config {
		c := DefaultConfig()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"empty local_member_uri", func(c *Config) { c.LocalMemberURI = "" }, true},
		{"no member_uris", func(c *Config) { c.MemberURIs = nil }, true},
		{"local not in members", func(c *Config) { c.LocalMemberURI = "tcp://other:7500" }, true},
		{"zero election_timeout", func(c *Config) { c.ElectionTimeout = 0 }, true},
		{"zero heartbeat_interval", func(c *Config) { c.HeartbeatInterval = 0 }, true},
		{"heartbeat not less than election", func(c *Config) {
			c.HeartbeatInterval = c.ElectionTimeout
		}, true},
		{"unknown protocol_scheme", func(c *Config) { c.ProtocolScheme = "udp" }, true},
		{"empty log_name", func(c *Config) { c.LogName = "" }, true},
		{"empty log_directory", func(c *Config) { c.LogDirectory = "" }, true},
		{"zero log_segment_size", func(c *Config) { c.LogSegmentSize = 0 }, true},
		{"unknown retention policy", func(c *Config) { c.LogRetentionPolicy = "forever" }, true},
		{"unknown log_level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ravel_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# Test configuration
local_member_uri = "tcp://node-1:7500"
member_uris = "tcp://node-1:7500,tcp://node-2:7500,tcp://node-3:7500"
election_timeout = "600ms"
heartbeat_interval = "150ms"
log_directory = "/tmp/ravel/log"
log_level = "debug"
log_json = true
`

	configPath := filepath.Join(tmpDir, "ravel.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()

	if cfg.LocalMemberURI != "tcp://node-1:7500" {
		t.Errorf("Expected local_member_uri 'tcp://node-1:7500', got '%s'", cfg.LocalMemberURI)
	}
	if len(cfg.MemberURIs) != 3 {
		t.Errorf("Expected 3 member_uris, got %d", len(cfg.MemberURIs))
	}
	if cfg.ElectionTimeout != 600*time.Millisecond {
		t.Errorf("Expected election_timeout 600ms, got %s", cfg.ElectionTimeout)
	}
	if cfg.HeartbeatInterval != 150*time.Millisecond {
		t.Errorf("Expected heartbeat_interval 150ms, got %s", cfg.HeartbeatInterval)
	}
	if cfg.LogDirectory != "/tmp/ravel/log" {
		t.Errorf("Expected log_directory '/tmp/ravel/log', got '%s'", cfg.LogDirectory)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true, got %v", cfg.LogJSON)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origURI := os.Getenv(EnvLocalMemberURI)
	origLevel := os.Getenv(EnvLogLevel)
	origJSON := os.Getenv(EnvLogJSON)

	defer func() {
		os.Setenv(EnvLocalMemberURI, origURI)
		os.Setenv(EnvLogLevel, origLevel)
		os.Setenv(EnvLogJSON, origJSON)
	}()

	os.Setenv(EnvLocalMemberURI, "tcp://node-9:7500")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.LocalMemberURI != "tcp://node-9:7500" {
		t.Errorf("Expected local_member_uri from env, got '%s'", cfg.LocalMemberURI)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true from env, got %v", cfg.LogJSON)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ravel_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `local_member_uri = "tcp://file-node:7500"
member_uris = "tcp://file-node:7500"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "ravel.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	origURI := os.Getenv(EnvLocalMemberURI)
	defer os.Setenv(EnvLocalMemberURI, origURI)
	os.Setenv(EnvLocalMemberURI, "tcp://env-node:7500")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.LocalMemberURI != "tcp://env-node:7500" {
		t.Errorf("Expected local_member_uri 'tcp://env-node:7500' (env override), got '%s'", cfg.LocalMemberURI)
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ravel_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.LocalMemberURI = "tcp://node-7:7500"
	cfg.MemberURIs = []string{"tcp://node-7:7500"}

	configPath := filepath.Join(tmpDir, "subdir", "ravel.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.LocalMemberURI != "tcp://node-7:7500" {
		t.Errorf("Expected local_member_uri 'tcp://node-7:7500', got '%s'", loaded.LocalMemberURI)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ravel_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `local_member_uri = "tcp://node-1:7500"
member_uris = "tcp://node-1:7500"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "ravel.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.LogLevel != "info" {
		t.Errorf("Expected initial log_level 'info', got '%s'", cfg.LogLevel)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) {
		reloadCalled = true
	})

	newContent := `local_member_uri = "tcp://node-1:7500"
member_uris = "tcp://node-1:7500"
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg = mgr.Get()
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected reloaded log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("Reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Error("Global() returned nil")
	}

	mgr2 := Global()
	if mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !strings.Contains(str, "LocalMemberURI:") {
		t.Error("String() missing LocalMemberURI")
	}
	if !strings.Contains(str, "tcp://127.0.0.1:7500") {
		t.Error("String() missing local_member_uri value")
	}
}
