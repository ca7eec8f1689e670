package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeWebhook(); err != nil {
		return err
	}
	if err := c.normalizeCursor(); err != nil {
		return err
	}
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeStore() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = defaultStorePath
	}
	var err error
	if c.Store.Path, err = ExpandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	if c.Store.PollInterval == 0 {
		c.Store.PollInterval = defaultPollInterval
	}
	return nil
}

func (c *Config) normalizeWebhook() error {
	if c.Webhook.URL == "" {
		if value, ok := os.LookupEnv("TATTLE_WEBHOOK_URL"); ok {
			c.Webhook.URL = value
		}
	}
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)
	if c.Webhook.RequestTimeout == 0 {
		c.Webhook.RequestTimeout = defaultWebhookRequestTimeout
	}
	if c.Webhook.QueueSize == 0 {
		c.Webhook.QueueSize = defaultWebhookQueueSize
	}
	return nil
}

func (c *Config) normalizeCursor() error {
	if strings.TrimSpace(c.Cursor.Path) == "" {
		c.Cursor.Path = defaultCursorPath
	}
	var err error
	if c.Cursor.Path, err = ExpandPath(c.Cursor.Path); err != nil {
		return fmt.Errorf("cursor.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() error {
	if strings.TrimSpace(c.Daemon.StateDir) == "" {
		c.Daemon.StateDir = defaultStateDir
	}
	var err error
	if c.Daemon.StateDir, err = ExpandPath(c.Daemon.StateDir); err != nil {
		return fmt.Errorf("daemon.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
