package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Store describes where the notification database lives and how it is
// tailed.
type Store struct {
	// Path is the notification database location. The default points at
	// the macOS user notification center store.
	Path string `toml:"path"`
	// PollInterval is the steady-state polling cadence in seconds.
	PollInterval int `toml:"poll_interval"`
	// Backfill starts the cursor at zero so every existing row is emitted
	// before tailing new ones.
	Backfill bool `toml:"backfill"`
}

// Webhook configures the optional outbound HTTP sink. An empty URL
// disables the sink entirely.
type Webhook struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
	MaxRetries     int    `toml:"max_retries"`
	QueueSize      int    `toml:"queue_size"`
	// RatePerSecond caps outbound deliveries; zero means unlimited.
	RatePerSecond float64 `toml:"rate_per_second"`
}

// Cursor configures opt-in persistence of the last published row id.
type Cursor struct {
	Persist bool   `toml:"persist"`
	Path    string `toml:"path"`
}

// Daemon contains runtime housekeeping paths.
type Daemon struct {
	// StateDir holds the lock file, pid file, and the default cursor file.
	StateDir string `toml:"state_dir"`
	// WatchStore enables filesystem notifications on the store directory
	// to wake the tail loop ahead of the next poll.
	WatchStore bool `toml:"watch_store"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tattle.
//
// Configuration sections by subsystem:
//   - Store: notification database path and polling cadence
//   - Webhook: optional outbound HTTP sink
//   - Cursor: opt-in resume state across restarts
//   - Daemon: lock/pid/state locations and store watching
//   - Logging: log format and level
type Config struct {
	Store   Store   `toml:"store"`
	Webhook Webhook `toml:"webhook"`
	Cursor  Cursor  `toml:"cursor"`
	Daemon  Daemon  `toml:"daemon"`
	Logging Logging `toml:"logging"`
}

// SampleConfig returns the annotated sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/tattle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was actually found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Daemon.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Cursor.Persist {
		if err := os.MkdirAll(filepath.Dir(c.Cursor.Path), 0o755); err != nil {
			return fmt.Errorf("create cursor directory: %w", err)
		}
	}
	return nil
}

// ExpandPath resolves a leading tilde against the user's home directory
// and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
