package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matthewjhunter/bytebite"
	"github.com/matthewjhunter/bytebite/internal/output"
	"github.com/matthewjhunter/bytebite/internal/storage"
	"github.com/matthewjhunter/bytebite/internal/tui"
)

const defaultConfigPath = "./config/config.yaml"

var (
	configPath   string
	cfg          *storage.Config
	outputFormat string
	format       output.Format
	logger       *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bytebite",
		Short:         "A terminal RSS reader that keeps its feeds and articles in local documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return err
			}
			f, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			format = f
			logger = setupLogger(cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path, .yaml or .toml (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(feedsCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(removeCmd())
	rootCmd.AddCommand(articlesCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(tuiCmd())
	rootCmd.AddCommand(daemonCmd())
	return rootCmd
}

func loadConfig() error {
	if configPath == "" {
		configPath = defaultConfigPath
	}
	c, err := storage.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// setupLogger writes to stderr so stdout carries only command output.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openEngine() (*bytebite.Engine, error) {
	engine, err := bytebite.NewEngine(bytebite.EngineConfig{
		Backend:           cfg.Storage.Backend,
		DataDir:           cfg.Storage.DataDir,
		FeedsDocument:     cfg.Storage.FeedsDocument,
		ArticlesDocument:  cfg.Storage.ArticlesDocument,
		SequencesDocument: cfg.Storage.SequencesDocument,
		SQLitePath:        cfg.Storage.SQLitePath,
		Baseline:          cfg.Sync.Baseline,
		Timeout:           cfg.Sync.Timeout,
		UserAgent:         cfg.Sync.UserAgent,
		Concurrency:       cfg.Sync.Concurrency,
		MaxBodyBytes:      cfg.Sync.MaxBodyBytes,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return engine, nil
}

func formatterFor(cmd *cobra.Command) *output.Formatter {
	return output.NewFormatterWithWriters(format, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func parseFeedID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid feed ID %q: %w", s, err)
	}
	return id, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create empty feed and article documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			formatterFor(cmd).Success("Store ready (%s backend)", cfg.Storage.Backend)
			return nil
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(storage.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			formatterFor(cmd).Success("Created default config at %s", configPath)
			return nil
		},
	}
}

func feedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List subscribed feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			list, err := engine.Feeds(cmd.Context())
			if err != nil {
				return err
			}
			return formatterFor(cmd).OutputFeeds(list)
		},
	}
}

func addCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   `add "<category> | <name> | <url>"`,
		Short: "Subscribe to a feed and fetch its articles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(cmd)
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			feed, task, err := engine.AddFeed(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("failed to add feed: %w", err)
			}
			formatter.Success("Added feed %d: %s", feed.ID, feed.Name)
			if noSync {
				task.Cancel()
				return nil
			}

			result, err := task.Wait(cmd.Context())
			if err != nil {
				if bytebite.IsRecoverable(err) {
					formatter.Warning("initial sync of %s failed: %v", feed.URL, err)
					return nil
				}
				return err
			}
			return formatter.OutputSyncResult(result)
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "store the feed without fetching it")
	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <feed-id>",
		Short: "Unsubscribe from a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFeedID(args[0])
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.RemoveFeed(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to remove feed: %w", err)
			}
			formatterFor(cmd).Success("Removed feed %d", id)
			return nil
		},
	}
}

func articlesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "articles <feed-id>",
		Short: "List a feed's articles, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFeedID(args[0])
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			articles, err := engine.ArticlesForFeed(cmd.Context(), id)
			if err != nil {
				return err
			}
			if limit > 0 && len(articles) > limit {
				articles = articles[:limit]
			}
			return formatterFor(cmd).OutputArticles(articles)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of articles to show (0 for all)")
	return cmd
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [feed-id]",
		Short: "Fetch new articles for one feed, or for every feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(cmd)
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if len(args) == 0 {
				outcomes, err := engine.RefreshAll(cmd.Context())
				if outcomes != nil {
					if ferr := formatter.OutputRefreshOutcomes(outcomes); ferr != nil {
						return ferr
					}
				}
				return err
			}

			id, err := parseFeedID(args[0])
			if err != nil {
				return err
			}
			task, err := engine.RefreshFeed(cmd.Context(), id)
			if err != nil {
				return err
			}
			result, err := task.Wait(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to refresh feed %d: %w", id, err)
			}
			return formatter.OutputSyncResult(result)
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <opml-file>",
		Short: "Import feeds from an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open OPML file: %w", err)
			}
			defer f.Close()

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			n, err := engine.ImportOPML(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("failed to import OPML: %w", err)
			}
			formatterFor(cmd).Success("Imported %d feed(s) from %s", n, args[0])
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [opml-file]",
		Short: "Export feeds as OPML (to stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if len(args) == 0 {
				return engine.ExportOPML(cmd.Context(), cmd.OutOrStdout())
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create OPML file: %w", err)
			}
			if err := engine.ExportOPML(cmd.Context(), f); err != nil {
				f.Close()
				return fmt.Errorf("failed to export OPML: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write OPML file: %w", err)
			}
			formatterFor(cmd).Success("Exported feeds to %s", args[0])
			return nil
		},
	}
}

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive reader",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The terminal belongs to the reader while it runs.
			logger = slog.New(slog.DiscardHandler)

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			return tui.Run(cmd.Context(), engine)
		},
	}
}
