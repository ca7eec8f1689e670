package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Path == "" {
		return errors.New("store.path must be set")
	}
	if c.Store.PollInterval < 1 {
		return fmt.Errorf("store.poll_interval must be at least 1 second, got %d", c.Store.PollInterval)
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if c.Webhook.URL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Webhook.URL)
	if err != nil {
		return fmt.Errorf("webhook.url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("webhook.url must use http or https, got %q", parsed.Scheme)
	}
	if c.Webhook.RequestTimeout < 1 {
		return errors.New("webhook.request_timeout must be at least 1 second")
	}
	if c.Webhook.MaxRetries < 0 {
		return errors.New("webhook.max_retries must not be negative")
	}
	if c.Webhook.QueueSize < 1 {
		return errors.New("webhook.queue_size must be at least 1")
	}
	if c.Webhook.RatePerSecond < 0 {
		return errors.New("webhook.rate_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
