package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dhcgn/homework-intake/model"
)

// ErrIO marks every filesystem failure raised while archiving.
var ErrIO = errors.New("archive I/O failed")

// Error records the failed operation and the path it touched.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// Options locates the archive tree. Archived messages go to
// <OutputRoot>/<ArchiveFolder>/ and attachments to
// <OutputRoot>/<AttachmentFolder>/<stem>/.
type Options struct {
	OutputRoot       string
	ArchiveFolder    string
	AttachmentFolder string
	Course           string
	Assignment       string
}

// Result lists where a submission ended up.
type Result struct {
	MessagePath     string
	AttachmentPaths []string
}

// AttachmentDir is the folder holding the attachments, or "" when there are none.
func (r Result) AttachmentDir() string {
	if len(r.AttachmentPaths) == 0 {
		return ""
	}
	return filepath.Dir(r.AttachmentPaths[0])
}

type Writer struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Writer, error) {
	if strings.TrimSpace(opts.OutputRoot) == "" {
		return nil, fmt.Errorf("archive output root is empty")
	}
	if opts.ArchiveFolder == "" || opts.AttachmentFolder == "" {
		return nil, fmt.Errorf("archive folders must be set")
	}
	return &Writer{opts: opts, logger: logger}, nil
}

// Stem is the "<course> - <assignment> - <id> - <name>" base name shared by
// the archived message and its attachment folder.
func (w *Writer) Stem(entry model.RosterEntry) string {
	parts := []string{w.opts.Course, w.opts.Assignment, entry.ID, entry.DisplayName}
	for i, p := range parts {
		parts[i] = sanitizeComponent(p)
	}
	return strings.Join(parts, " - ")
}

func (w *Writer) MessagePath(entry model.RosterEntry) string {
	return filepath.Join(w.opts.OutputRoot, w.opts.ArchiveFolder, w.Stem(entry)+".eml")
}

func (w *Writer) AttachmentDir(entry model.RosterEntry) string {
	return filepath.Join(w.opts.OutputRoot, w.opts.AttachmentFolder, w.Stem(entry))
}

// Archive writes the attachments and then moves messageFile into the archive.
// When any attachment fails, messageFile is left where it was.
func (w *Writer) Archive(messageFile string, entry model.RosterEntry, attachments []model.Attachment) (Result, error) {
	dir := w.AttachmentDir(entry)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, &Error{Op: "mkdir", Path: dir, Err: err}
	}

	written := make(map[string]bool, len(attachments))
	paths := make([]string, 0, len(attachments))
	for _, a := range attachments {
		target := filepath.Join(dir, SafeFilename(a.Filename))

		if written[target] {
			w.warn("attachment name repeated in submission, overwriting", "path", target)
		} else if _, err := os.Lstat(target); err == nil {
			w.warn("attachment already exists, overwriting", "path", target)
		}

		if err := os.WriteFile(target, a.Content, 0o644); err != nil {
			return Result{}, &Error{Op: "write", Path: target, Err: err}
		}
		written[target] = true
		paths = append(paths, target)
		if w.logger != nil {
			w.logger.Info("attachment saved", "path", target, "bytes", len(a.Content))
		}
	}

	dest := w.MessagePath(entry)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, &Error{Op: "mkdir", Path: filepath.Dir(dest), Err: err}
	}
	if err := moveFile(messageFile, dest); err != nil {
		return Result{}, err
	}

	return Result{MessagePath: dest, AttachmentPaths: paths}, nil
}

func (w *Writer) warn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}

// moveFile renames src to dst, falling back to copy-then-delete across
// filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return &Error{Op: "move", Path: src, Err: err}
	}

	if err := copyFile(src, dst); err != nil {
		return &Error{Op: "copy", Path: dst, Err: err}
	}
	if err := os.Remove(src); err != nil {
		return &Error{Op: "remove", Path: src, Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// SafeFilename reduces an attachment name to a bare file name so it cannot
// escape the attachment folder.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, `\`, "/")
	base := strings.TrimSpace(path.Base(name))
	switch base {
	case "", ".", "..", "/":
		return "attachment"
	}
	return base
}

func sanitizeComponent(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.NewReplacer("/", "_", `\`, "_").Replace(s)
}
