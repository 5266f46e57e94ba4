package mbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
)

var errFilterModeConflict = errors.New("include and exclude filters are mutually exclusive")

// Options configures Split. Header patterns are regular expressions matched
// against the raw header block of each message.
type Options struct {
	Path          string
	OutputDir     string
	IncludeHeader []string
	ExcludeHeader []string
}

type Result struct {
	Written  int
	Existing int
	Filtered int
	Errors   int
}

func (r Result) LogAttrs() []any {
	return []any{"written", r.Written, "existing", r.Existing, "filtered", r.Filtered, "errors", r.Errors}
}

// Splitter explodes an mbox archive into one .eml file per message so the
// messages can be picked up from the intake directory.
type Splitter struct {
	opts    Options
	base    string
	include []*regexp.Regexp
	exclude []*regexp.Regexp
	logger  *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Splitter, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("mbox output directory is empty")
	}

	include, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	exclude, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	if len(include) > 0 && len(exclude) > 0 {
		return nil, errFilterModeConflict
	}

	if logger == nil {
		logger = slog.Default()
	}
	opts.Path = path
	return &Splitter{
		opts:    opts,
		base:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		include: include,
		exclude: exclude,
		logger:  logger,
	}, nil
}

// Split reads the configured mbox file.
func (s *Splitter) Split(ctx context.Context) (Result, error) {
	file, err := os.Open(s.opts.Path)
	if err != nil {
		return Result{}, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return s.SplitReader(ctx, file)
}

// SplitReader writes every message of the mbox stream r to
// "<OutputDir>/<base>-NNNNN.eml", where NNNNN is the message position in the
// archive. Existing files are kept, so splitting the same archive twice
// produces no new files.
func (s *Splitter) SplitReader(ctx context.Context, r io.Reader) (Result, error) {
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	var res Result
	reader := mboxlib.NewReader(r)
	for idx := 1; ; idx++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return res, fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			res.Errors++
			s.logger.Error("mbox message unreadable", "path", s.opts.Path, "index", idx, "err", err)
			continue
		}

		if !s.allows(headerBlock(raw)) {
			res.Filtered++
			continue
		}

		target := filepath.Join(s.opts.OutputDir, fmt.Sprintf("%s-%05d.eml", s.base, idx))
		switch err := writeExclusive(target, raw); {
		case err == nil:
			res.Written++
			s.logger.Debug("mbox message written", "path", target, "bytes", len(raw))
		case errors.Is(err, os.ErrExist):
			res.Existing++
		default:
			return res, fmt.Errorf("write %s: %w", target, err)
		}
	}
}

func (s *Splitter) allows(header []byte) bool {
	if len(s.include) > 0 {
		return matchAny(s.include, header)
	}
	return !matchAny(s.exclude, header)
}

func writeExclusive(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text []byte) bool {
	for _, re := range patterns {
		if re.Match(text) {
			return true
		}
	}
	return false
}

func headerBlock(raw []byte) []byte {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx]
	}
	return raw
}
