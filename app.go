package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dhcgn/homework-intake/archive"
	"github.com/dhcgn/homework-intake/config"
	"github.com/dhcgn/homework-intake/filter"
	"github.com/dhcgn/homework-intake/progress"
	"github.com/dhcgn/homework-intake/report"
	"github.com/dhcgn/homework-intake/roster"
	"github.com/dhcgn/homework-intake/runner"
	"github.com/dhcgn/homework-intake/state"
	"github.com/dhcgn/homework-intake/stats"
)

// app holds the services shared by the subcommands of one invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	ledger state.Ledger
	roster *roster.Index
}

func openApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	for _, dir := range []string{cfg.EmailDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	ledger, err := state.Open(cfg.LedgerOptions())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	logger.Info("ledger loaded", "backend", cfg.Ledger.Backend, "path", cfg.Ledger.Path, "records", ledger.Len())

	idx, err := roster.LoadIndex(cfg.RosterOptions())
	if err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if idx.Len() == 0 {
		logger.Warn("roster is empty", "path", cfg.Roster.Path, "startRow", cfg.Roster.StartRow)
	}
	if dups := idx.DuplicateIDs(); len(dups) > 0 {
		logger.Warn("roster has duplicate student IDs", "ids", dups)
	}
	logger.Info("roster loaded", "path", cfg.Roster.Path, "students", idx.Len())

	return &app{cfg: cfg, logger: logger, ledger: ledger, roster: idx}, nil
}

func (a *app) Close() error {
	return a.ledger.Close()
}

func (a *app) process(ctx context.Context) error {
	writer, err := archive.New(a.cfg.ArchiveOptions(), a.logger)
	if err != nil {
		return fmt.Errorf("archive.New: %w", err)
	}

	r, err := runner.New(runner.Options{IntakeDir: a.cfg.EmailDir, DryRun: a.cfg.DryRun}, runner.Deps{
		Ledger:   a.ledger,
		Roster:   a.roster,
		Filter:   filter.New(a.cfg.FilterOptions()),
		Archiver: writer,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	var metrics *stats.Collector
	if a.cfg.MetricsFile != "" {
		metrics = stats.NewCollector()
		r.Subscribe(metrics)
	}
	bar := progress.New(a.cfg.Progress)
	r.Subscribe(bar)

	summary, runErr := r.Run(ctx)
	bar.Stop(summary)

	if metrics != nil {
		if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Error("write metrics failed", "path", a.cfg.MetricsFile, "err", err)
		}
	}
	return runErr
}

func (a *app) writeReport() error {
	if a.cfg.DryRun {
		a.logger.Info("dry-run: report not written", "path", a.cfg.ReportPath())
		return nil
	}

	sink, err := report.NewSink(a.cfg.Report.Format)
	if err != nil {
		return err
	}

	rows := report.Build(a.roster.Entries(), state.Records(a.ledger.Entries()))
	path := a.cfg.ReportPath()
	if err := sink.Write(path, rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	a.logger.Info("report written", "path", path, "students", len(rows), "submitted", report.Count(rows))
	return nil
}
