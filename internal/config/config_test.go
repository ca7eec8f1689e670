package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tattle/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Store.PollInterval != 5 {
		t.Fatalf("expected default poll interval 5, got %d", cfg.Store.PollInterval)
	}
	if cfg.Webhook.URL != "" {
		t.Fatalf("webhook should be disabled by default, got %q", cfg.Webhook.URL)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := writeConfig(t, `
[store]
path = "/tmp/notifications.db"
poll_interval = 2
backfill = true

[webhook]
url = "https://example.com/hook"
max_retries = 1

[logging]
format = "json"
level = "debug"
`)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected to load %s, got %s (exists=%v)", path, resolved, exists)
	}
	if cfg.Store.Path != "/tmp/notifications.db" || cfg.Store.PollInterval != 2 || !cfg.Store.Backfill {
		t.Fatalf("store overrides not applied: %+v", cfg.Store)
	}
	if cfg.Webhook.URL != "https://example.com/hook" || cfg.Webhook.MaxRetries != 1 {
		t.Fatalf("webhook overrides not applied: %+v", cfg.Webhook)
	}
	if cfg.Webhook.RequestTimeout != 10 {
		t.Fatalf("expected default request timeout to survive, got %d", cfg.Webhook.RequestTimeout)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging overrides not applied: %+v", cfg.Logging)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	path := writeConfig(t, `
[store]
path = "~/notifications.db"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	if cfg.Store.Path != filepath.Join(home, "notifications.db") {
		t.Fatalf("tilde not expanded: %q", cfg.Store.Path)
	}
}

func TestWebhookURLFromEnvironment(t *testing.T) {
	t.Setenv("TATTLE_WEBHOOK_URL", "https://hooks.example.com/notify")
	path := writeConfig(t, "")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Webhook.URL != "https://hooks.example.com/notify" {
		t.Fatalf("env fallback not applied: %q", cfg.Webhook.URL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		fragment string
	}{
		{
			name:     "negative poll interval",
			contents: "[store]\npoll_interval = -3\n",
			fragment: "poll_interval",
		},
		{
			name:     "bad webhook scheme",
			contents: "[webhook]\nurl = \"ftp://example.com\"\n",
			fragment: "http or https",
		},
		{
			name:     "unknown log format",
			contents: "[logging]\nformat = \"xml\"\n",
			fragment: "logging.format",
		},
		{
			name:     "unknown log level",
			contents: "[logging]\nlevel = \"verbose\"\n",
			fragment: "logging.level",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Fatalf("error %q does not mention %q", err, tc.fragment)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := writeConfig(t, config.SampleConfig())
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
	defaults := config.Default()
	if cfg.Store.PollInterval != defaults.Store.PollInterval {
		t.Fatalf("sample poll interval %d differs from default %d", cfg.Store.PollInterval, defaults.Store.PollInterval)
	}
	if cfg.Logging.Format != defaults.Logging.Format || cfg.Logging.Level != defaults.Logging.Level {
		t.Fatalf("sample logging %+v differs from defaults %+v", cfg.Logging, defaults.Logging)
	}
}
