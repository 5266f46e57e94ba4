package model

// Attachment is a named binary payload extracted from a message part.
type Attachment struct {
	Filename string
	Content  []byte
}

// ParsedMessage holds the fields of one raw message the intake pipeline needs.
// Absent headers are represented by empty strings, never by missing values.
type ParsedMessage struct {
	Subject     string
	Sender      string
	Timestamp   string
	Attachments []Attachment
}

// AttachmentNames returns the attachment filenames in message order.
func (m ParsedMessage) AttachmentNames() []string {
	names := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		names = append(names, a.Filename)
	}
	return names
}

// SubmissionKey derives the dedup key of a message. The fields are joined
// verbatim with "-" and are not escaped.
func SubmissionKey(sender, subject, timestamp string) string {
	return sender + "-" + subject + "-" + timestamp
}

// Key returns the submission key of the message.
func (m ParsedMessage) Key() string {
	return SubmissionKey(m.Sender, m.Subject, m.Timestamp)
}
