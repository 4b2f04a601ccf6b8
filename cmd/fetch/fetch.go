package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitwall/racefeed/internal/archive"
	"github.com/pitwall/racefeed/internal/notify"
)

// parseDescriptor builds a session descriptor from positional args, falling
// back to the configured session when none are given.
func parseDescriptor(args []string) (archive.Descriptor, error) {
	if len(args) == 0 {
		return cfg.Session.Descriptor(), nil
	}
	if len(args) != 3 {
		return archive.Descriptor{}, fmt.Errorf("expected YEAR EVENT SESSION, got %d args", len(args))
	}

	year, err := strconv.Atoi(args[0])
	if err != nil {
		return archive.Descriptor{}, fmt.Errorf("parsing year %q: %w", args[0], err)
	}

	desc := archive.Descriptor{Year: year, Event: args[1], Session: args[2]}
	if err := desc.Validate(); err != nil {
		return archive.Descriptor{}, err
	}
	return desc, nil
}

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [YEAR EVENT SESSION]",
		Short: "Download a session's telemetry into the cache",
		Long: `Download a Grand Prix session's telemetry and lap times into the
local cache, ready for the replay server to load.

With no arguments the configured session is fetched.

Examples:
  # Fetch the configured session
  racefeed-fetch fetch

  # Fetch a specific session
  racefeed-fetch fetch 2023 monaco R`,
		Args: cobra.RangeArgs(0, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			desc, err := parseDescriptor(args)
			if err != nil {
				return err
			}

			cache, err := archive.NewCache(cfg.Cache.Dir)
			if err != nil {
				return err
			}
			defer cache.Close()

			client := archive.NewClient(
				cfg.Archive.BaseURL,
				cfg.Archive.RatePerSecond,
				cfg.Archive.Timeout(),
				cfg.Archive.RetryDelay(),
				cfg.Archive.RetryCount,
				logger,
			)
			fetcher := archive.NewFetcher(client, cache, cfg.Archive.Workers, logger)

			notifyCfg := notify.LoadConfig()
			if err := notifyCfg.Validate(); err != nil {
				return err
			}
			notifier := notify.New(notifyCfg, logger)

			logger.Info("fetching session", zap.String("session", desc.String()))
			start := time.Now()

			result, err := fetcher.FetchSession(ctx, desc)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			logger.Info("fetch complete",
				zap.Int("total", result.Total),
				zap.Int("success", result.Success),
				zap.Int("skipped", result.Skipped),
				zap.Int("not_found", result.NotFound),
				zap.Int("failed", result.Failed),
				zap.Duration("duration", elapsed),
			)

			if result.Failed > 0 {
				for _, e := range result.Errors {
					logger.Error("fetch error", zap.String("error", e))
				}
				failErr := fmt.Errorf("%d fetches failed", result.Failed)
				if err := notifier.SendFailure(ctx, result, desc.String(), elapsed, failErr); err != nil {
					logger.Warn("failed to send notification", zap.Error(err))
				}
				return failErr
			}

			if err := notifier.SendSuccess(ctx, result, desc.String(), elapsed); err != nil {
				logger.Warn("failed to send notification", zap.Error(err))
			}

			return nil
		},
	}

	return cmd
}
