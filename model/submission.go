package model

// RosterEntry is one enrolled student.
type RosterEntry struct {
	ID          string
	DisplayName string
}

// LedgerRecord describes one fully archived submission.
type LedgerRecord struct {
	StudentID       string   `json:"student_id"`
	StudentName     string   `json:"name"`
	EmailPath       string   `json:"email_path"`
	AttachmentPaths []string `json:"attachments"`
}

// ReportRow is the submission status of one roster entry.
type ReportRow struct {
	ID            string
	DisplayName   string
	Submitted     bool
	EmailPath     string
	AttachmentDir string
}
