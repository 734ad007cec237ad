package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Values here are bootstrap defaults; runtime-tunable settings (library path,
// quality, playlist strategies) are persisted in the catalog database and
// override the file once set.
type Config struct {
	Library     LibraryConfig     `toml:"library"`
	Sync        SyncConfig        `toml:"sync"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Credentials CredentialsConfig `toml:"credentials"`
	Resolver    ResolverConfig    `toml:"resolver"`
}

// LibraryConfig describes the on-disk music library downloads are written to.
type LibraryConfig struct {
	Path         string `toml:"path"`
	Format       string `toml:"format"`        // mp3, flac, m4a, wav
	Bitrate      int    `toml:"bitrate"`       // minimum acceptable kbps
	PathTemplate string `toml:"path_template"` // e.g. {artist}/{album}/{artist} - {title}.{ext}
}

// SyncConfig tunes the scheduler, worker pool, and retry policy.
type SyncConfig struct {
	IntervalMinutes int     `toml:"interval_minutes"`
	Concurrency     int     `toml:"concurrency"`
	MaxAttempts     int     `toml:"max_attempts"`      // per-item attempts within one cycle
	FetchTimeoutSec int     `toml:"fetch_timeout_sec"` // per-Fetcher-call timeout
	RateLimit       float64 `toml:"rate_limit"`        // Fetcher calls per second
}

// Interval returns the cycle cadence as a [time.Duration].
func (s SyncConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// FetchTimeout returns the per-fetch timeout as a [time.Duration].
func (s SyncConfig) FetchTimeout() time.Duration {
	if s.FetchTimeoutSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.FetchTimeoutSec) * time.Second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for the status API.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// ResolverConfig points at the download resolver sidecar that performs the
// actual search-and-fetch.
type ResolverConfig struct {
	URL    string `toml:"url"`
	Cookie string `toml:"cookie"` // optional cookie header forwarded to the sidecar
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
		return fmt.Errorf("config file already exists at %s", path)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
