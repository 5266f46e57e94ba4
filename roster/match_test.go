package roster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/homework-intake/model"
)

func TestMatch_IDBoundary(t *testing.T) {
	entries := []model.RosterEntry{{ID: "123", DisplayName: "Alice"}}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "standalone token", text: "item 123 sent by Alice", want: true},
		{name: "embedded in alphanumeric code", text: "a1234b Alice", want: false},
		{name: "longer number", text: "1234 Alice", want: false},
		{name: "prefixed by digit", text: "0123 Alice", want: false},
		{name: "prefixed by letter", text: "x123 Alice", want: false},
		{name: "followed by letter", text: "123x Alice", want: false},
		{name: "underscore separators", text: "123_Alice_hw.pdf", want: true},
		{name: "at end of text", text: "Alice 123", want: true},
		{name: "second occurrence is standalone", text: "a1234 Alice 123.pdf", want: true},
		{name: "followed by non-ascii letter", text: "123张三 Alice", want: true},
		{name: "name missing", text: "item 123 sent", want: false},
		{name: "id missing", text: "Alice", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Match(tt.text, entries)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestMatch_NameIsPlainSubstring(t *testing.T) {
	entries := []model.RosterEntry{{ID: "1001", DisplayName: "Al"}}

	e, ok := Match("1001 Alice", entries)
	require.True(t, ok)
	assert.Equal(t, "Al", e.DisplayName)

	// Regex metacharacters in names are literal.
	entries = []model.RosterEntry{{ID: "1002", DisplayName: "O.K. (Jr)"}}
	_, ok = Match("1002 O.K. (Jr)", entries)
	assert.True(t, ok)
	_, ok = Match("1002 OxKx Jr", entries)
	assert.False(t, ok)
}

func TestMatch_FirstRosterOrderWins(t *testing.T) {
	entries := []model.RosterEntry{
		{ID: "1001", DisplayName: "Alice"},
		{ID: "1002", DisplayName: "Bob"},
	}
	text := "1002 Bob and 1001 Alice"

	e, ok := Match(text, entries)
	require.True(t, ok)
	assert.Equal(t, "1001", e.ID)

	all := MatchAll(text, entries)
	assert.Equal(t, entries, all)
}

func TestMatch_RequiresBothOnSameEntry(t *testing.T) {
	entries := []model.RosterEntry{
		{ID: "1001", DisplayName: "Alice"},
		{ID: "1002", DisplayName: "Bob"},
	}

	_, ok := Match("1001 Bob", entries)
	assert.False(t, ok)
}

func TestMatch_EmptyFieldsNeverMatch(t *testing.T) {
	entries := []model.RosterEntry{{ID: "", DisplayName: "Alice"}, {ID: "1001", DisplayName: ""}}
	_, ok := Match("1001 Alice", entries)
	assert.False(t, ok)
}

func TestMatch_Unicode(t *testing.T) {
	entries := []model.RosterEntry{{ID: "20230001", DisplayName: "张三"}}
	e, ok := Match("课程X 作业1 作业_20230001_张三.docx", entries)
	require.True(t, ok)
	assert.Equal(t, "张三", e.DisplayName)
}

func TestIndex_Match(t *testing.T) {
	idx := NewIndex([]model.RosterEntry{{ID: "1001", DisplayName: "Alice"}, {ID: "1002", DisplayName: "Bob"}})

	e, ok := idx.Match("CourseX Assignment1 submission 1001_Alice_hw.pdf")
	require.True(t, ok)
	assert.Equal(t, model.RosterEntry{ID: "1001", DisplayName: "Alice"}, e)
	assert.Len(t, idx.MatchAll("1001 Alice"), 1)
}

func BenchmarkMatch_LastEntry(b *testing.B) {
	entries := make([]model.RosterEntry, 0, 200)
	for i := 0; i < 200; i++ {
		entries = append(entries, model.RosterEntry{ID: fmt.Sprintf("2023%04d", i), DisplayName: fmt.Sprintf("Student%d", i)})
	}
	text := "Operating Systems Lab 3 20230199_Student199_lab3.zip"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Match(text, entries)
	}
}
