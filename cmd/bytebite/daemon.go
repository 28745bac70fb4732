package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewjhunter/bytebite"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Refresh every feed in a loop",
		Long: `Continuously refresh all feeds on a timer.
Designed for running as a background service next to the reader.
Handles SIGINT/SIGTERM for graceful shutdown: running syncs are cancelled
and the stored documents are left as they were before the cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Sync.Interval
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			if err := engine.Bootstrap(ctx); err != nil {
				return err
			}
			return runDaemon(ctx, engine, interval)
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 15*time.Minute, "duration between refresh cycles (default: sync.interval from config)")
	return cmd
}

type refresher interface {
	RefreshAll(ctx context.Context) ([]bytebite.RefreshOutcome, error)
}

// runDaemon refreshes immediately and then every interval until ctx is done.
func runDaemon(ctx context.Context, engine refresher, interval time.Duration) error {
	logger.Info("daemon starting", "interval", interval)

	for cycle := 1; ; cycle++ {
		start := time.Now()
		outcomes, err := engine.RefreshAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("daemon stopping", "cycle", cycle)
				return nil
			}
			logger.Error("refresh cycle failed", "cycle", cycle, "error", err)
		} else {
			added, failed := 0, 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					if !bytebite.IsRecoverable(o.Err) {
						logger.Error("feed refresh failed", "feed_id", o.Feed.ID, "error", o.Err)
					}
					continue
				}
				added += len(o.Result.Added)
			}
			logger.Info("refresh cycle complete",
				"cycle", cycle,
				"feeds", len(outcomes),
				"added", added,
				"failed", failed,
				"duration", time.Since(start).Round(time.Millisecond))
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("daemon stopping", "cycle", cycle)
			return nil
		case <-timer.C:
		}
	}
}
