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
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/homework-intake/cmd"
	"github.com/dhcgn/homework-intake/config"
	"github.com/dhcgn/homework-intake/mbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "homework-intake",
		Short:        "Archive homework submissions delivered as .eml files and report who submitted",
		SilenceUsage: true,
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Process the intake directory, then write the submission report",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app) error {
				if err := a.process(ctx); err != nil {
					return err
				}
				return a.writeReport()
			}),
		},
		&cobra.Command{
			Use:   "process",
			Short: "Process the intake directory without writing the report",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.process(ctx)
			}),
		},
		&cobra.Command{
			Use:   "report",
			Short: "Write the submission report from the ledger",
			Args:  cobra.NoArgs,
			RunE: withApp(func(_ context.Context, a *app) error {
				return a.writeReport()
			}),
		},
		newSplitMboxCmd(),
		cmd.NewIntakeStatsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func withApp(fn func(context.Context, *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, logger, cleanup, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		a, err := openApp(cfg, logger)
		if err != nil {
			logger.Error("startup failed", "err", err)
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Error("close ledger", "err", err)
			}
		}()

		return fn(cmd.Context(), a)
	}
}

func newSplitMboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split-mbox [mbox file]",
		Short: "Split an mbox archive into .eml files inside the intake directory",
		Args:  cobra.ExactArgs(1),
	}
	includeHeader := cmd.Flags().StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with --exclude-header)")
	excludeHeader := cmd.Flags().StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with --include-header)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, cleanup, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		splitter, err := mbox.New(mbox.Options{
			Path:          args[0],
			OutputDir:     cfg.EmailDir,
			IncludeHeader: *includeHeader,
			ExcludeHeader: *excludeHeader,
		}, logger)
		if err != nil {
			return fmt.Errorf("mbox.New: %w", err)
		}

		res, err := splitter.Split(cmd.Context())
		if err != nil {
			logger.Error("split mbox failed", append(res.LogAttrs(), "mbox", args[0], "err", err)...)
			return err
		}
		logger.Info("mbox split", append(res.LogAttrs(), "mbox", args[0], "intakeDir", cfg.EmailDir)...)
		return nil
	}
	return cmd
}

func bootstrap(cmd *cobra.Command) (config.Config, *slog.Logger, func() error, error) {
	noop := func() error { return nil }

	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, noop, err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return config.Config{}, nil, noop, err
	}

	slog.SetDefault(logger)
	logger.Info("starting homework-intake",
		"command", cmd.Name(),
		"course", cfg.CourseName,
		"assignment", cfg.AssignmentName,
		"intakeDir", cfg.EmailDir,
		"outputDir", cfg.OutputDir,
		"dryRun", cfg.DryRun)
	return cfg, logger, cleanup, nil
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("homework-intake-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
