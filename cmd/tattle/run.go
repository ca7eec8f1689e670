package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tattle/internal/config"
	"tattle/internal/daemon"
	"tattle/internal/logging"
	"tattle/internal/publish"
	"tattle/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		backfill   bool
		storePath  string
		webhookURL string
		poll       int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tail the notification store and emit records",
		Long: "Run the tail loop in the foreground. Decoded notifications are " +
			"written to stdout as JSON lines; logs go to stderr. The loop runs " +
			"until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunFlags(cfg, backfill, storePath, webhookURL, poll); err != nil {
				return withCode(exitConfig, err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return withCode(exitConfig, err)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return withCode(exitConfig, fmt.Errorf("init logger: %w", err))
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reader, err := store.Open(signalCtx, cfg.Store.Path)
			if err != nil {
				if errors.Is(err, store.ErrSchemaMismatch) {
					return withCode(exitSchema, err)
				}
				return withCode(exitOpen, err)
			}

			pub := publish.New(logger)
			pub.Attach(publish.NewStreamSink(os.Stdout), true)
			if cfg.Webhook.URL != "" {
				pub.Attach(publish.NewWebhookSink(publish.WebhookOptions{
					URL:           cfg.Webhook.URL,
					Timeout:       time.Duration(cfg.Webhook.RequestTimeout) * time.Second,
					MaxRetries:    cfg.Webhook.MaxRetries,
					QueueSize:     cfg.Webhook.QueueSize,
					RatePerSecond: cfg.Webhook.RatePerSecond,
				}, logger), false)
			}

			d, err := daemon.New(cfg, reader, pub, logger)
			if err != nil {
				reader.Close()
				pub.Close()
				return err
			}
			if err := d.Start(signalCtx); err != nil {
				reader.Close()
				pub.Close()
				return err
			}

			runErr := d.Wait()
			if closeErr := d.Close(); closeErr != nil && runErr == nil {
				runErr = closeErr
			}
			if runErr != nil {
				return withCode(exitTail, fmt.Errorf("tail loop failed: %w", runErr))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&backfill, "backfill", false, "Emit every row already in the store before tailing")
	cmd.Flags().StringVar(&storePath, "store", "", "Path to the notification store database")
	cmd.Flags().StringVar(&webhookURL, "webhook", "", "POST each record to this URL as well")
	cmd.Flags().IntVar(&poll, "poll", 0, "Poll interval in seconds")
	return cmd
}

// applyRunFlags layers command-line overrides on top of the loaded
// config and re-validates the result.
func applyRunFlags(cfg *config.Config, backfill bool, storePath, webhookURL string, poll int) error {
	if backfill {
		cfg.Store.Backfill = true
	}
	if storePath != "" {
		expanded, err := config.ExpandPath(storePath)
		if err != nil {
			return err
		}
		cfg.Store.Path = expanded
	}
	if webhookURL != "" {
		cfg.Webhook.URL = webhookURL
	}
	if poll > 0 {
		cfg.Store.PollInterval = poll
	}
	return cfg.Validate()
}
