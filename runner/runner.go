package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dhcgn/homework-intake/archive"
	"github.com/dhcgn/homework-intake/filter"
	"github.com/dhcgn/homework-intake/message"
	"github.com/dhcgn/homework-intake/model"
	"github.com/dhcgn/homework-intake/roster"
	"github.com/dhcgn/homework-intake/state"
	"github.com/dhcgn/homework-intake/stats"
)

// MessageExt is the extension of message files picked up from the intake
// directory. Matching is case-insensitive.
const MessageExt = ".eml"

// Archiver relocates an accepted submission into the output tree.
type Archiver interface {
	Archive(messageFile string, entry model.RosterEntry, attachments []model.Attachment) (archive.Result, error)
}

type Options struct {
	IntakeDir string
	DryRun    bool
}

// Deps are the services a Runner drives. All of them are required except
// Logger.
type Deps struct {
	Ledger   state.Ledger
	Roster   *roster.Index
	Filter   *filter.Filter
	Archiver Archiver
	Logger   *slog.Logger
}

// Runner performs intake passes over one intake directory.
type Runner struct {
	opts      Options
	ledger    state.Ledger
	roster    *roster.Index
	filter    *filter.Filter
	archiver  Archiver
	logger    *slog.Logger
	observers stats.Fanout
}

func New(opts Options, deps Deps) (*Runner, error) {
	if opts.IntakeDir == "" {
		return nil, errors.New("intake directory is empty")
	}
	if deps.Ledger == nil || deps.Roster == nil || deps.Filter == nil || deps.Archiver == nil {
		return nil, errors.New("runner requires ledger, roster, filter and archiver")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		opts:     opts,
		ledger:   deps.Ledger,
		roster:   deps.Roster,
		filter:   deps.Filter,
		archiver: deps.Archiver,
		logger:   logger,
	}, nil
}

// Subscribe registers an observer for the events of every following pass.
func (r *Runner) Subscribe(o stats.Observer) {
	r.observers = append(r.observers, o)
}

// Pending lists the message files currently in the intake directory.
func (r *Runner) Pending() ([]string, error) {
	return PendingFiles(r.opts.IntakeDir)
}

// PendingFiles lists the message files in dir in lexical order.
// Subdirectories and other files are ignored.
func PendingFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read intake dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), MessageExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// Run performs one pass over the intake directory. Per-message failures are
// logged and counted; only listing the intake directory, persisting the
// ledger and cancellation end the pass with an error. The context is
// checked between messages, never inside one.
func (r *Runner) Run(ctx context.Context) (stats.Summary, error) {
	runID := ulid.Make().String()
	logger := r.logger.With("runID", runID)
	since := time.Now()

	collector := stats.NewCollector()
	emit := append(stats.Fanout{collector}, r.observers...).Observe

	files, err := r.Pending()
	if err != nil {
		return summarize(collector, runID), err
	}
	emit(stats.Event{Type: stats.EventTypeStarted, Total: len(files)})
	logger.Info("intake pass started", "intakeDir", r.opts.IntakeDir, "pending", len(files), "known", r.ledger.Len(), "dryRun", r.opts.DryRun)

	var runErr error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			runErr = err
			logger.Warn("intake pass interrupted", "err", err)
			break
		}
		r.process(logger, emit, path)
	}

	if r.ledger.Dirty() {
		if err := r.ledger.Persist(); err != nil {
			logger.Error("ledger persist failed", "err", err)
			return summarize(collector, runID), fmt.Errorf("persist ledger: %w", err)
		}
		logger.Info("ledger persisted", "records", r.ledger.Len())
	} else {
		logger.Info("no new submissions processed")
	}

	summary := summarize(collector, runID)
	logger.Info("intake pass completed", append(summary.LogAttrs(), "duration", time.Since(since))...)
	return summary, runErr
}

func (r *Runner) process(logger *slog.Logger, emit func(stats.Event), path string) {
	emit(stats.Event{Type: stats.EventTypeScanned, File: path})

	msg, err := message.ParseFile(path)
	if err != nil {
		logger.Warn("skipping unreadable message", "file", path, "err", err)
		emit(stats.Event{Type: stats.EventTypeMalformed, File: path, Err: err})
		return
	}

	key := msg.Key()
	if r.ledger.Contains(key) {
		logger.Debug("skipping already processed message", "file", path, "key", key)
		emit(stats.Event{Type: stats.EventTypeDuplicate, File: path, Key: key})
		return
	}

	text := filter.MatchText(msg.Subject, msg.AttachmentNames())
	if missing := r.filter.MissingPart(text); missing != "" {
		logger.Info("skipping ineligible message", "file", path, "subject", msg.Subject, "missing", missing)
		emit(stats.Event{Type: stats.EventTypeIneligible, File: path, Key: key, Detail: missing})
		return
	}

	entry, ok := r.roster.Match(text)
	if !ok {
		logger.Warn("no roster entry matches message", "file", path, "subject", msg.Subject, "attachments", msg.AttachmentNames())
		emit(stats.Event{Type: stats.EventTypeUnmatched, File: path, Key: key})
		return
	}
	if candidates := r.roster.MatchAll(text); len(candidates) > 1 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		logger.Warn("message matches several roster entries, using the first", "file", path, "candidates", ids, "chosen", entry.ID)
	}

	if r.opts.DryRun {
		logger.Info("dry-run: would archive submission", "file", path, "studentID", entry.ID, "name", entry.DisplayName, "attachments", len(msg.Attachments))
		emit(stats.Event{Type: stats.EventTypeDryRun, File: path, Key: key, StudentID: entry.ID})
		return
	}

	res, err := r.archiver.Archive(path, entry, msg.Attachments)
	if err != nil {
		logger.Error("archiving submission failed", "file", path, "studentID", entry.ID, "err", err)
		emit(stats.Event{Type: stats.EventTypeError, File: path, Key: key, StudentID: entry.ID, Err: err})
		return
	}

	rec := model.LedgerRecord{
		StudentID:       entry.ID,
		StudentName:     entry.DisplayName,
		EmailPath:       res.MessagePath,
		AttachmentPaths: res.AttachmentPaths,
	}
	if err := r.ledger.Record(key, rec); err != nil {
		logger.Error("recording submission failed", "file", path, "key", key, "err", err)
		emit(stats.Event{Type: stats.EventTypeError, File: path, Key: key, StudentID: entry.ID, Err: err})
		return
	}

	logger.Info("submission archived", "studentID", entry.ID, "name", entry.DisplayName, "message", res.MessagePath, "attachments", len(res.AttachmentPaths))
	emit(stats.Event{Type: stats.EventTypeArchived, File: path, Key: key, StudentID: entry.ID})
}

func summarize(c *stats.Collector, runID string) stats.Summary {
	s := c.Snapshot()
	s.RunID = runID
	return s
}
