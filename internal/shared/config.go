package shared

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Upstream UpstreamConfig `toml:"upstream"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Sync     SyncConfig     `toml:"sync"`
	Agent    AgentConfig    `toml:"agent"`
}

// UpstreamConfig contains connection settings for the music server.
type UpstreamConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ProbeSeconds   int    `toml:"probe_interval_seconds"`
}

// StorageConfig contains local data directory and cache sizing settings.
type StorageConfig struct {
	DataDir    string `toml:"data_dir"`
	CacheCapMB int64  `toml:"cache_cap_mb"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// GatewayConfig contains playback gateway listener settings.
type GatewayConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	PreloadSlots int    `toml:"preload_slots"`
	GuestMode    bool   `toml:"guest_mode"`
}

// SyncConfig contains metadata sync scheduling settings.
type SyncConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
	ChunkSize       int `toml:"chunk_size"`
}

// AgentConfig contains background agent behavior settings.
type AgentConfig struct {
	Environment string `toml:"environment"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolvedDataDir returns the storage data directory with a leading "~" expanded.
func (c *Config) ResolvedDataDir() string {
	return ExpandHome(c.Storage.DataDir)
}

// DatabasePath returns the configured database path, falling back to
// fermata.db inside the data directory when unset.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return ExpandHome(c.Database.Path)
	}
	return filepath.Join(c.ResolvedDataDir(), "fermata.db")
}

// BlobDir returns the directory holding cached media blobs.
func (c *Config) BlobDir() string {
	return filepath.Join(c.ResolvedDataDir(), "blobs")
}

// TokenPath returns the path of the shared session token store.
func (c *Config) TokenPath() string {
	return filepath.Join(c.ResolvedDataDir(), "session.db")
}

// GatewayAddr returns the host:port address the playback gateway listens on.
func (c *Config) GatewayAddr() string {
	return net.JoinHostPort(c.Gateway.Host, strconv.Itoa(c.Gateway.Port))
}

// GatewayURL returns the base URL of the playback gateway.
func (c *Config) GatewayURL() string {
	return "http://" + c.GatewayAddr()
}

// CacheCapBytes returns the configured cache capacity in bytes.
func (c *Config) CacheCapBytes() int64 {
	return c.Storage.CacheCapMB * 1024 * 1024
}

// UpstreamTimeout returns the request timeout for upstream calls.
func (c *Config) UpstreamTimeout() time.Duration {
	if c.Upstream.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// ProbeInterval returns the delay between upstream connectivity probes.
func (c *Config) ProbeInterval() time.Duration {
	if c.Upstream.ProbeSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Upstream.ProbeSeconds) * time.Second
}

// SyncInterval returns the delay between scheduled metadata sync cycles.
func (c *Config) SyncInterval() time.Duration {
	if c.Sync.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// SyncChunkSize returns how many songs are fetched per upstream page during
// a sync cycle.
func (c *Config) SyncChunkSize() int {
	if c.Sync.ChunkSize <= 0 {
		return 25
	}
	return c.Sync.ChunkSize
}

// Development reports whether the agent runs with development settings.
func (c *Config) Development() bool {
	return c.Agent.Environment == "development"
}

// UpdateCheckInterval returns the delay between upstream version checks.
// Development shortens it so upgrades surface quickly while iterating.
func (c *Config) UpdateCheckInterval() time.Duration {
	if c.Development() {
		return time.Minute
	}
	return time.Hour
}
