package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Allows(t *testing.T) {
	f := New(Options{
		CourseNames:     []string{"CourseX", "CX"},
		AssignmentNames: []string{"Assignment1", "HW1"},
	})

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "both primary names", text: "CourseX Assignment1 submission", want: true},
		{name: "course alias", text: "CX Assignment1", want: true},
		{name: "assignment alias in filename", text: "CourseX 1001_Alice_HW1.pdf", want: true},
		{name: "both aliases", text: "CX-HW1", want: true},
		{name: "substring without word boundary", text: "myCourseXAssignment1", want: true},
		{name: "assignment only", text: "Assignment1 done", want: false},
		{name: "alias only", text: "HW1 done", want: false},
		{name: "course only", text: "CourseX question", want: false},
		{name: "case sensitive", text: "coursex assignment1", want: false},
		{name: "empty", text: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Allows(tt.text))
		})
	}
}

func TestFilter_BlankNamesIgnored(t *testing.T) {
	f := New(Options{
		CourseNames:     []string{"", "  "},
		AssignmentNames: []string{"Assignment1"},
	})

	// A blank name would otherwise match every text.
	assert.False(t, f.Allows("Assignment1"))
}

func TestFilter_MissingPart(t *testing.T) {
	f := New(Options{CourseNames: []string{"CourseX"}, AssignmentNames: []string{"Assignment1"}})

	assert.Equal(t, "", f.MissingPart("CourseX Assignment1"))
	assert.Equal(t, "course name", f.MissingPart("Assignment1"))
	assert.Equal(t, "assignment name", f.MissingPart("CourseX"))
	assert.Equal(t, "course and assignment name", f.MissingPart("hello"))
}

func TestIsEligible(t *testing.T) {
	assert.True(t, IsEligible("CourseX Assignment1", []string{"CourseX"}, []string{"Assignment1"}))
	assert.False(t, IsEligible("CourseX Assignment1", nil, []string{"Assignment1"}))
}

func TestMatchText(t *testing.T) {
	assert.Equal(t, "subj a.pdf b.pdf", MatchText("subj", []string{"a.pdf", "b.pdf"}))
	assert.Equal(t, "subj ", MatchText("subj", nil))
}
