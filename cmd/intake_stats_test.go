package cmd

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/homework-intake/filter"
	"github.com/dhcgn/homework-intake/model"
	"github.com/dhcgn/homework-intake/roster"
)

func writeMessage(t *testing.T, dir, name, from, subject string) string {
	t.Helper()
	content := "From: " + from + "\r\nSubject: " + subject + "\r\nDate: Mon, 02 Sep 2024 10:00:00 +0800\r\n\r\nbody\r\n"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeMessage(t, dir, "1.eml", "alice@example.com", "CourseX Assignment1 1001 Alice"),
		writeMessage(t, dir, "2.eml", "alice@example.com", "CourseX Assignment1 1001 Alice"),
		writeMessage(t, dir, "3.eml", "bob@example.com", "CourseX Assignment1"),
		writeMessage(t, dir, "4.eml", "spam@example.com", "win a prize"),
	}
	bad := filepath.Join(dir, "5.eml")
	require.NoError(t, os.WriteFile(bad, []byte("  "), 0o644))
	files = append(files, bad)

	counts := Analyze(files, Classifier{
		Filter: filter.New(filter.Options{CourseNames: []string{"CourseX"}, AssignmentNames: []string{"Assignment1"}}),
		Roster: roster.NewIndex([]model.RosterEntry{{ID: "1001", DisplayName: "Alice"}}),
	})

	assert.Equal(t, 2, counts["From"]["alice@example.com"])
	assert.Equal(t, map[string]int{
		OutcomeEligible:   2,
		OutcomeUnmatched:  1,
		OutcomeIneligible: 1,
		OutcomeMalformed:  1,
	}, counts["Outcome"])

	top := counts.Top("From", 1)
	require.Len(t, top, 1)
	assert.Equal(t, "alice@example.com", top[0].Key)
}

func TestAnalyze_WithoutRoster(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeMessage(t, dir, "1.eml", "bob@example.com", "CourseX Assignment1")}

	counts := Analyze(files, Classifier{
		Filter: filter.New(filter.Options{CourseNames: []string{"CourseX"}, AssignmentNames: []string{"Assignment1"}}),
	})
	assert.Equal(t, 1, counts["Outcome"][OutcomeEligible])
}

func TestSaveCSVReports(t *testing.T) {
	counts := Counts{
		"From":    {"a@example.com": 3, "b@example.com": 1},
		"Subject": {},
		"Outcome": {OutcomeEligible: 4},
	}
	dir := filepath.Join(t.TempDir(), "reports")
	require.NoError(t, SaveCSVReports(counts, dir, 1))

	file, err := os.Open(filepath.Join(dir, "report_from.csv"))
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Value", "Count"}, {"a@example.com", "3"}}, records)

	assert.FileExists(t, filepath.Join(dir, "report_subject.csv"))
	assert.FileExists(t, filepath.Join(dir, "report_outcome.csv"))
}
