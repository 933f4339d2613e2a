package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schaermu/mtime-rewind/internal/config"
	"github.com/schaermu/mtime-rewind/internal/rewind"
	"github.com/schaermu/mtime-rewind/internal/scan"
	"github.com/schaermu/mtime-rewind/internal/state"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile     string
	logLevel    string
	logFormat   string
	dryRun      bool
	stateFormat string
	workers     int

	// logOutput receives log lines; stdout is reserved for the summary.
	logOutput io.Writer = os.Stderr
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mtime-rewind [flags] <root>",
	Short: "Restore modification times of files whose content did not change",
	Long: `mtime-rewind fingerprints every file under a directory tree and compares
the result with the state saved by the previous run. Files whose content is
unchanged but whose modification time moved get their previous modification
time back, so mtime-based build caches stay warm across fresh checkouts.

State is kept in a single file directly under the root (.hashprint by default).
The first run only records a baseline.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	Version:      version,
	RunE:         runRewind,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mtime-rewind {{.Version}}\n  commit: %s\n  built:  %s\n", commit, date))

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is <root>/"+config.FileName+" when present)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	rootCmd.Flags().BoolVar(&dryRun, "dry", false, "alias for --dry-run")
	rootCmd.Flags().StringVar(&stateFormat, "state-format", "", "override state.format (json, sqlite)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "override scan.workers (0 uses all CPUs)")

	_ = rootCmd.Flags().MarkHidden("dry")
}

func runRewind(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger().With("run_id", uuid.NewString())

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}

	cfg, err := loadConfig(cmd, root, logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := state.Open(root, cfg.State.File, cfg.State.Format, logger)
	if err != nil {
		return err
	}

	opts := rewind.Options{
		Scan: scan.Options{
			StateFile:     cfg.State.File,
			IncludeHidden: cfg.Scan.IncludeHidden,
			CacheDirTag:   cfg.Scan.CacheDirTag,
			Exclude:       cfg.Scan.Exclude,
		},
		Workers: cfg.Scan.Workers,
	}
	engine := rewind.NewEngine(root, store, opts, logger, dryRun)

	report, err := engine.Run(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		return err
	}

	printSummary(cmd.OutOrStdout(), report)
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(logOutput, opts)
	} else {
		handler = slog.NewTextHandler(logOutput, opts)
	}

	return slog.New(handler)
}

// loadConfig resolves the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command, root string, logger *slog.Logger) (*config.Config, error) {
	cfg, path, err := config.Resolve(cfgFile, root)
	if err != nil {
		return nil, err
	}
	if path != "" {
		logger.Info("loaded configuration", "path", path)
	}

	if cmd.Flags().Changed("state-format") {
		cfg.State.Format = state.Format(stateFormat)
	}
	if cmd.Flags().Changed("workers") {
		cfg.Scan.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded",
		"state_file", cfg.State.File,
		"state_format", cfg.State.Format,
		"exclude", cfg.Scan.Exclude,
		"include_hidden", cfg.Scan.IncludeHidden,
		"cachedir_tag", cfg.Scan.CacheDirTag,
		"workers", cfg.Scan.Workers)

	return cfg, nil
}

func printSummary(w io.Writer, report *rewind.Report) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	verb := "rewound"
	if report.DryRun {
		verb = "would rewind"
		_, _ = yellow.Fprint(w, "[dry-run] ")
	}

	_, _ = bold.Fprintf(w, "%s: ", report.Root)
	_, _ = green.Fprintf(w, "%d %s", report.Rewound(), verb)
	_, _ = fmt.Fprintf(w, ", %d unchanged, %d new, %d changed, %d removed",
		report.Count(rewind.Unchanged),
		report.Count(rewind.AdoptNew),
		report.Count(rewind.AdoptChanged),
		len(report.Removed))
	if n := report.Failed(); n > 0 {
		_, _ = red.Fprintf(w, ", %d failed", n)
	}
	_, _ = fmt.Fprintln(w)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
