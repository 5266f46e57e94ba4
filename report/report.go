package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dhcgn/homework-intake/model"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

var ErrUnknownFormat = errors.New("unknown report format")

// Header is the column order shared by every sink.
var Header = []string{"Student ID", "Name", "Submitted", "Email Path", "Attachment Folder"}

// Build returns one row per roster entry in roster order. Each record marks
// every roster row with its student ID as submitted; records are applied in
// order, so the last one for a student wins.
func Build(entries []model.RosterEntry, records []model.LedgerRecord) []model.ReportRow {
	rows := make([]model.ReportRow, len(entries))
	byID := make(map[string][]int, len(entries))
	for i, e := range entries {
		rows[i] = model.ReportRow{ID: e.ID, DisplayName: e.DisplayName}
		byID[e.ID] = append(byID[e.ID], i)
	}

	for _, rec := range records {
		for _, i := range byID[rec.StudentID] {
			rows[i].Submitted = true
			rows[i].EmailPath = rec.EmailPath
			rows[i].AttachmentDir = attachmentDir(rec.AttachmentPaths)
		}
	}
	return rows
}

func attachmentDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return filepath.Dir(paths[0])
}

// Count returns how many rows are marked submitted.
func Count(rows []model.ReportRow) int {
	n := 0
	for _, r := range rows {
		if r.Submitted {
			n++
		}
	}
	return n
}

// Path is the report location for a course and assignment:
// "<outputDir>/<course> - <assignment> - submissions.<format>".
func Path(outputDir, course, assignment, format string) string {
	name := fmt.Sprintf("%s - %s - submissions.%s", clean(course), clean(assignment), format)
	return filepath.Join(outputDir, name)
}

func clean(s string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(s)
}

// Sink renders report rows into a file.
type Sink interface {
	Write(path string, rows []model.ReportRow) error
}

func NewSink(format string) (Sink, error) {
	switch strings.ToLower(format) {
	case FormatXLSX:
		return XLSXSink{}, nil
	case FormatCSV:
		return CSVSink{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func record(r model.ReportRow) []string {
	submitted := "no"
	if r.Submitted {
		submitted = "yes"
	}
	return []string{r.ID, r.DisplayName, submitted, r.EmailPath, r.AttachmentDir}
}
