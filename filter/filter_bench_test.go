package filter

import (
	"testing"
)

// BenchmarkFilter_Allows_Match benchmarks an eligible text hitting the primary names
func BenchmarkFilter_Allows_Match(b *testing.B) {
	f := New(Options{
		CourseNames:     []string{"Operating Systems", "OS"},
		AssignmentNames: []string{"Lab 3", "L3"},
	})
	text := MatchText("Operating Systems Lab 3 - 20230001 Alice", []string{"20230001_Alice_lab3.zip"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(text)
	}
}

// BenchmarkFilter_Allows_Miss benchmarks the worst case where every alias is scanned
func BenchmarkFilter_Allows_Miss(b *testing.B) {
	f := New(Options{
		CourseNames:     []string{"Operating Systems", "OS", "OpSys", "Systems Programming"},
		AssignmentNames: []string{"Lab 3", "L3"},
	})
	text := MatchText("Question about the lecture slides", []string{"slides_annotated.pdf"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(text)
	}
}
