package config

const (
	defaultStorePath = "~/Library/Group Containers/group.com.apple.usernoted/db2/db"
	defaultStateDir  = "~/.local/share/tattle"

	defaultPollInterval = 5

	defaultWebhookRequestTimeout = 10
	defaultWebhookMaxRetries     = 4
	defaultWebhookQueueSize      = 256
	defaultWebhookRatePerSecond  = 5

	defaultCursorPath = "~/.local/share/tattle/cursor"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Store: Store{
			Path:         defaultStorePath,
			PollInterval: defaultPollInterval,
		},
		Webhook: Webhook{
			RequestTimeout: defaultWebhookRequestTimeout,
			MaxRetries:     defaultWebhookMaxRetries,
			QueueSize:      defaultWebhookQueueSize,
			RatePerSecond:  defaultWebhookRatePerSecond,
		},
		Cursor: Cursor{
			Path: defaultCursorPath,
		},
		Daemon: Daemon{
			StateDir:   defaultStateDir,
			WatchStore: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
