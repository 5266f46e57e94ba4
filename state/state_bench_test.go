package state

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dhcgn/homework-intake/model"
)

func benchRecord(i int) model.LedgerRecord {
	return model.LedgerRecord{
		StudentID:       fmt.Sprintf("2023%04d", i),
		StudentName:     fmt.Sprintf("Student %d", i),
		EmailPath:       fmt.Sprintf("/out/archive/%d.eml", i),
		AttachmentPaths: []string{fmt.Sprintf("/out/attachments/%d/hw.pdf", i)},
	}
}

// BenchmarkMemoryLedger_Record benchmarks in-memory recording
func BenchmarkMemoryLedger_Record(b *testing.B) {
	ledger := NewMemoryLedger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ledger.Record(fmt.Sprintf("key-%d", i), benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryLedger_Contains benchmarks lookup performance
func BenchmarkMemoryLedger_Contains(b *testing.B) {
	ledger := NewMemoryLedger()
	for i := 0; i < 1000; i++ {
		if err := ledger.Record(fmt.Sprintf("key-%d", i), benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ledger.Contains(fmt.Sprintf("key-%d", i%1000))
	}
}

// BenchmarkJSONLedger_Load benchmarks restoring a snapshot with 1000 entries
func BenchmarkJSONLedger_Load(b *testing.B) {
	path := filepath.Join(b.TempDir(), "processed_emails.json")
	ledger, err := OpenJSON(path)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		if err := ledger.Record(fmt.Sprintf("key-%d", i), benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}
	if err := ledger.Persist(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := OpenJSON(path); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSQLiteLedger_Persist benchmarks persisting batches of 100 records
func BenchmarkSQLiteLedger_Persist(b *testing.B) {
	ledger, err := OpenSQLite(filepath.Join(b.TempDir(), "ledger.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer ledger.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 100; j++ {
			n := i*100 + j
			if err := ledger.Record(fmt.Sprintf("key-%d", n), benchRecord(n)); err != nil {
				b.Fatal(err)
			}
		}
		if err := ledger.Persist(); err != nil {
			b.Fatal(err)
		}
	}
}
