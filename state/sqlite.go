package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/dhcgn/homework-intake/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_key TEXT NOT NULL UNIQUE,
	student_id     TEXT NOT NULL,
	student_name   TEXT NOT NULL,
	email_path     TEXT NOT NULL,
	attachments    TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_ledger_student ON ledger(student_id);
`

// SQLiteLedger keeps the ledger in a SQLite database. Records reach the
// database only on Persist.
type SQLiteLedger struct {
	*MemoryLedger
	db   *sql.DB
	path string
}

func OpenSQLite(path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create ledger directory: %w", ErrLedgerIO, err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrLedgerIO, path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %w", ErrLedgerIO, err)
	}

	ledger := &SQLiteLedger{
		MemoryLedger: NewMemoryLedger(),
		db:           db,
		path:         path,
	}
	if err := ledger.load(); err != nil {
		db.Close()
		return nil, err
	}

	return ledger, nil
}

func (s *SQLiteLedger) Path() string {
	return s.path
}

func (s *SQLiteLedger) load() error {
	rows, err := s.db.Query(`SELECT submission_key, student_id, student_name, email_path, attachments FROM ledger ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("%w: query ledger: %w", ErrLedgerIO, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key         string
			rec         model.LedgerRecord
			attachments string
		)
		if err := rows.Scan(&key, &rec.StudentID, &rec.StudentName, &rec.EmailPath, &attachments); err != nil {
			return fmt.Errorf("%w: scan ledger row: %w", ErrLedgerIO, err)
		}
		if err := json.Unmarshal([]byte(attachments), &rec.AttachmentPaths); err != nil {
			return fmt.Errorf("%w: decode attachments of %q: %w", ErrLedgerIO, key, err)
		}
		s.restore(key, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: read ledger: %w", ErrLedgerIO, err)
	}

	return nil
}

// Persist inserts the records added since the last load or persist in one
// transaction.
func (s *SQLiteLedger) Persist() error {
	pending := s.pendingEntries()
	if len(pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrLedgerIO, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO ledger (submission_key, student_id, student_name, email_path, attachments) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %w", ErrLedgerIO, err)
	}
	defer stmt.Close()

	for _, e := range pending {
		attachments, err := json.Marshal(e.Record.AttachmentPaths)
		if err != nil {
			return fmt.Errorf("%w: encode attachments of %q: %w", ErrLedgerIO, e.Key, err)
		}
		if _, err := stmt.Exec(e.Key, e.Record.StudentID, e.Record.StudentName, e.Record.EmailPath, string(attachments)); err != nil {
			return fmt.Errorf("%w: insert %q: %w", ErrLedgerIO, e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrLedgerIO, err)
	}

	s.markClean()
	return nil
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
