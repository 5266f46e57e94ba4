package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dhcgn/homework-intake/model"
)

var roster = []model.RosterEntry{
	{ID: "1001", DisplayName: "Alice"},
	{ID: "1002", DisplayName: "Bob"},
	{ID: "1003", DisplayName: "Carol"},
}

func TestBuild_Completeness(t *testing.T) {
	entries := make([]model.RosterEntry, 10)
	for i := range entries {
		entries[i] = model.RosterEntry{ID: fmt.Sprintf("%d", 2000+i), DisplayName: fmt.Sprintf("S%d", i)}
	}
	records := []model.LedgerRecord{
		{StudentID: "2001", EmailPath: "/a/1.eml", AttachmentPaths: []string{"/att/1/x.pdf"}},
		{StudentID: "2004", EmailPath: "/a/4.eml"},
		{StudentID: "2007", EmailPath: "/a/7.eml", AttachmentPaths: []string{}},
		{StudentID: "9999", EmailPath: "/a/unknown.eml"},
	}

	rows := Build(entries, records)
	require.Len(t, rows, 10)
	assert.Equal(t, 3, Count(rows))
	for i, r := range rows {
		assert.Equal(t, entries[i].ID, r.ID)
		if !r.Submitted {
			assert.Empty(t, r.EmailPath)
			assert.Empty(t, r.AttachmentDir)
		}
	}
	assert.Equal(t, "/att/1", rows[1].AttachmentDir)
	assert.Empty(t, rows[4].AttachmentDir)
}

func TestBuild_LastRecordWins(t *testing.T) {
	rows := Build(roster, []model.LedgerRecord{
		{StudentID: "1002", EmailPath: "/first.eml", AttachmentPaths: []string{"/d1/a"}},
		{StudentID: "1002", EmailPath: "/second.eml"},
	})

	assert.True(t, rows[1].Submitted)
	assert.Equal(t, "/second.eml", rows[1].EmailPath)
	assert.Empty(t, rows[1].AttachmentDir)
}

func TestBuild_DuplicateRosterIDsAllMarked(t *testing.T) {
	entries := append([]model.RosterEntry{}, roster...)
	entries = append(entries, model.RosterEntry{ID: "1001", DisplayName: "Alice (retake)"})

	rows := Build(entries, []model.LedgerRecord{{StudentID: "1001", EmailPath: "/x.eml"}})
	assert.True(t, rows[0].Submitted)
	assert.True(t, rows[3].Submitted)
	assert.Equal(t, 2, Count(rows))
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build(nil, []model.LedgerRecord{{StudentID: "1"}}))
}

func TestPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/out", "CourseX - Assignment1 - submissions.xlsx"),
		Path("/out", "CourseX", "Assignment1", FormatXLSX))
	assert.Equal(t,
		filepath.Join("/out", "A_B - HW - submissions.csv"),
		Path("/out", "A/B", "HW", FormatCSV))
}

func sampleRows() []model.ReportRow {
	return Build(roster, []model.LedgerRecord{
		{StudentID: "1001", StudentName: "Alice", EmailPath: "/out/archive/a.eml", AttachmentPaths: []string{"/out/attachments/a/hw.pdf"}},
	})
}

func TestXLSXSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.xlsx")
	require.NoError(t, XLSXSink{}.Write(path, sampleRows()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"1001", "Alice", "yes", "/out/archive/a.eml", "/out/attachments/a"}, rows[1])
	assert.Equal(t, []string{"1002", "Bob", "no"}, rows[2])
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, CSVSink{}.Write(path, sampleRows()))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{"1003", "Carol", "no", "", ""}, records[3])
}

func TestNewSink(t *testing.T) {
	s, err := NewSink("XLSX")
	require.NoError(t, err)
	assert.IsType(t, XLSXSink{}, s)

	s, err = NewSink(FormatCSV)
	require.NoError(t, err)
	assert.IsType(t, CSVSink{}, s)

	_, err = NewSink("pdf")
	require.ErrorIs(t, err, ErrUnknownFormat)
}
