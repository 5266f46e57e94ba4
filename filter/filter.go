package filter

import (
	"strings"
)

// Options captures the course and assignment names a message must mention.
// Each list holds the configured name followed by its aliases.
type Options struct {
	CourseNames     []string
	AssignmentNames []string
}

// Filter decides whether a message plausibly belongs to the configured
// course and assignment.
type Filter struct {
	courseNames     []string
	assignmentNames []string
}

// New creates a Filter from the provided options. Blank names are dropped.
func New(opts Options) *Filter {
	return &Filter{
		courseNames:     compactNames(opts.CourseNames),
		assignmentNames: compactNames(opts.AssignmentNames),
	}
}

// Allows returns true if text contains at least one course name and at least
// one assignment name as case-sensitive substrings.
func (f *Filter) Allows(text string) bool {
	return containsAny(text, f.courseNames) && containsAny(text, f.assignmentNames)
}

// MissingPart names the half of the predicate that failed, for diagnostics.
// It returns "" when text is eligible.
func (f *Filter) MissingPart(text string) string {
	courseOK := containsAny(text, f.courseNames)
	assignmentOK := containsAny(text, f.assignmentNames)
	switch {
	case !courseOK && !assignmentOK:
		return "course and assignment name"
	case !courseOK:
		return "course name"
	case !assignmentOK:
		return "assignment name"
	}
	return ""
}

// IsEligible is the one-shot form of New(...).Allows(text).
func IsEligible(text string, courseNames, assignmentNames []string) bool {
	return New(Options{CourseNames: courseNames, AssignmentNames: assignmentNames}).Allows(text)
}

// MatchText builds the text the filter and the identity matcher search:
// the subject followed by every attachment filename, space separated.
func MatchText(subject string, attachmentNames []string) string {
	if len(attachmentNames) == 0 {
		return subject + " "
	}
	return subject + " " + strings.Join(attachmentNames, " ")
}

func compactNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
