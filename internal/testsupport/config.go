package testsupport

import (
	"path/filepath"
	"testing"

	"tattle/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp paths per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(base, "notifications.db")
	cfg.Store.PollInterval = 1
	cfg.Cursor.Path = filepath.Join(base, "cursor")
	cfg.Daemon.StateDir = filepath.Join(base, "state")
	cfg.Daemon.WatchStore = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBackfill enables full-backfill mode on the test config.
func WithBackfill() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Store.Backfill = true
	}
}

// WithWebhook points the webhook sink at the given URL.
func WithWebhook(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Webhook.URL = url
	}
}
