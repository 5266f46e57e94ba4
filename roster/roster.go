package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dhcgn/homework-intake/model"
)

var ErrUnsupportedFormat = errors.New("unsupported roster format")

// Options describes where the roster lives and which cells hold the data.
type Options struct {
	Path       string
	Sheet      string // xlsx only; empty selects the first sheet
	IDColumn   string // column letter, e.g. "B"
	NameColumn string // column letter, e.g. "C"
	StartRow   int    // 1-based row of the first student
}

// Load reads the roster table at opts.Path. Spreadsheets (.xlsx, .xlsm) and
// CSV files are supported. Rows lacking an ID or a name are skipped.
func Load(opts Options) ([]model.RosterEntry, error) {
	idCol, err := excelize.ColumnNameToNumber(strings.TrimSpace(opts.IDColumn))
	if err != nil {
		return nil, fmt.Errorf("roster id column %q: %w", opts.IDColumn, err)
	}
	nameCol, err := excelize.ColumnNameToNumber(strings.TrimSpace(opts.NameColumn))
	if err != nil {
		return nil, fmt.Errorf("roster name column %q: %w", opts.NameColumn, err)
	}
	startRow := opts.StartRow
	if startRow < 1 {
		startRow = 1
	}

	var rows [][]string
	switch ext := strings.ToLower(filepath.Ext(opts.Path)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readSpreadsheet(opts.Path, opts.Sheet)
	case ".csv":
		rows, err = readCSV(opts.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]model.RosterEntry, 0, len(rows))
	for idx := startRow - 1; idx < len(rows); idx++ {
		row := rows[idx]
		id := cell(row, idCol)
		name := cell(row, nameCol)
		if id == "" || name == "" {
			continue
		}
		entries = append(entries, model.RosterEntry{ID: id, DisplayName: name})
	}

	return entries, nil
}

func readSpreadsheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("roster %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read roster sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read roster csv: %w", err)
	}
	return rows, nil
}

func cell(row []string, col int) string {
	if col < 1 || col > len(row) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(row[col-1], "\ufeff"))
}

// Index is the read-only in-memory roster used for one pipeline run.
type Index struct {
	entries []model.RosterEntry
	byID    map[string]int
}

// NewIndex wraps entries in roster order. When an ID repeats, Lookup returns
// the first occurrence.
func NewIndex(entries []model.RosterEntry) *Index {
	idx := &Index{
		entries: append([]model.RosterEntry(nil), entries...),
		byID:    make(map[string]int, len(entries)),
	}
	for i, e := range idx.entries {
		if _, exists := idx.byID[e.ID]; !exists {
			idx.byID[e.ID] = i
		}
	}
	return idx
}

// LoadIndex loads the roster and indexes it.
func LoadIndex(opts Options) (*Index, error) {
	entries, err := Load(opts)
	if err != nil {
		return nil, err
	}
	return NewIndex(entries), nil
}

// Entries returns a copy of the roster in roster order.
func (i *Index) Entries() []model.RosterEntry {
	return append([]model.RosterEntry(nil), i.entries...)
}

func (i *Index) Len() int {
	return len(i.entries)
}

func (i *Index) Lookup(id string) (model.RosterEntry, bool) {
	pos, ok := i.byID[id]
	if !ok {
		return model.RosterEntry{}, false
	}
	return i.entries[pos], true
}

// DuplicateIDs lists IDs that occur more than once, in roster order.
func (i *Index) DuplicateIDs() []string {
	seen := make(map[string]int, len(i.entries))
	var dups []string
	for _, e := range i.entries {
		seen[e.ID]++
		if seen[e.ID] == 2 {
			dups = append(dups, e.ID)
		}
	}
	return dups
}

func (i *Index) Match(text string) (model.RosterEntry, bool) {
	return Match(text, i.entries)
}

func (i *Index) MatchAll(text string) []model.RosterEntry {
	return MatchAll(text, i.entries)
}
