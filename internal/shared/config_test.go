package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Storage.DataDir != "~/.fermata" {
			t.Errorf("expected data dir ~/.fermata, got %s", config.Storage.DataDir)
		}

		if config.Gateway.Port != 4597 {
			t.Errorf("expected gateway port 4597, got %d", config.Gateway.Port)
		}

		if config.Upstream.URL != "http://127.0.0.1:8080" {
			t.Errorf("expected upstream URL http://127.0.0.1:8080, got %s", config.Upstream.URL)
		}

		if config.Storage.CacheCapMB != 4096 {
			t.Errorf("expected cache cap 4096 MB, got %d", config.Storage.CacheCapMB)
		}

		if config.Gateway.PreloadSlots != 5 {
			t.Errorf("expected 5 preload slots, got %d", config.Gateway.PreloadSlots)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Storage.DataDir != defaultConfig.Storage.DataDir {
			t.Errorf("created config data dir doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[upstream]
url = "https://music.example.net"
timeout_seconds = 10
probe_interval_seconds = 5

[storage]
data_dir = "/var/lib/fermata"
cache_cap_mb = 512

[database]
path = "/custom/path.db"
max_open_conns = 20
max_idle_conns = 10

[gateway]
host = "0.0.0.0"
port = 9090
preload_slots = 3

[sync]
interval_minutes = 5
chunk_size = 25
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Upstream.URL != "https://music.example.net" {
			t.Errorf("expected upstream URL https://music.example.net, got %s", config.Upstream.URL)
		}

		if config.Gateway.Port != 9090 {
			t.Errorf("expected gateway port 9090, got %d", config.Gateway.Port)
		}

		if config.DatabasePath() != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.DatabasePath())
		}

		if config.CacheCapBytes() != 512*1024*1024 {
			t.Errorf("expected cache cap %d, got %d", int64(512*1024*1024), config.CacheCapBytes())
		}

		if config.SyncInterval() != 5*time.Minute {
			t.Errorf("expected sync interval 5m, got %v", config.SyncInterval())
		}
	})

	t.Run("DerivedPaths", func(t *testing.T) {
		config := &Config{
			Storage: StorageConfig{DataDir: "/data/fermata"},
			Gateway: GatewayConfig{Host: "127.0.0.1", Port: 4597},
		}

		if got := config.DatabasePath(); got != "/data/fermata/fermata.db" {
			t.Errorf("DatabasePath() = %v, want /data/fermata/fermata.db", got)
		}

		if got := config.BlobDir(); got != "/data/fermata/blobs" {
			t.Errorf("BlobDir() = %v, want /data/fermata/blobs", got)
		}

		if got := config.TokenPath(); got != "/data/fermata/session.db" {
			t.Errorf("TokenPath() = %v, want /data/fermata/session.db", got)
		}

		if got := config.GatewayAddr(); got != "127.0.0.1:4597" {
			t.Errorf("GatewayAddr() = %v, want 127.0.0.1:4597", got)
		}

		if got := config.GatewayURL(); got != "http://127.0.0.1:4597" {
			t.Errorf("GatewayURL() = %v, want http://127.0.0.1:4597", got)
		}
	})

	t.Run("Fallbacks", func(t *testing.T) {
		config := &Config{}

		if got := config.UpstreamTimeout(); got != 30*time.Second {
			t.Errorf("UpstreamTimeout() = %v, want 30s", got)
		}

		if got := config.ProbeInterval(); got != 30*time.Second {
			t.Errorf("ProbeInterval() = %v, want 30s", got)
		}

		if got := config.SyncInterval(); got != 15*time.Minute {
			t.Errorf("SyncInterval() = %v, want 15m", got)
		}

		if got := config.SyncChunkSize(); got != 25 {
			t.Errorf("SyncChunkSize() = %v, want 25", got)
		}

		if got := config.UpdateCheckInterval(); got != time.Hour {
			t.Errorf("UpdateCheckInterval() = %v, want 1h", got)
		}
	})

	t.Run("Environment", func(t *testing.T) {
		config := &Config{Agent: AgentConfig{Environment: "development"}}

		if !config.Development() {
			t.Error("expected development mode")
		}

		if got := config.UpdateCheckInterval(); got != time.Minute {
			t.Errorf("UpdateCheckInterval() = %v, want 1m in development", got)
		}
	})
}
