package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/homework-intake/model"
)

// ErrMalformed is returned when a blob cannot be parsed as a structured message.
var ErrMalformed = errors.New("malformed message")

// Parse converts a raw message into a ParsedMessage. Missing Subject, From and
// Date headers become empty strings; a message without attachments yields an
// empty attachment list.
func Parse(raw []byte) (model.ParsedMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.ParsedMessage{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return model.ParsedMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	header := mail.Header{Header: entity.Header}
	msg := model.ParsedMessage{
		Subject:     headerText(header, "Subject"),
		Sender:      headerText(header, "From"),
		Timestamp:   strings.TrimSpace(header.Get("Date")),
		Attachments: []model.Attachment{},
	}

	err = entity.Walk(func(_ []int, part *gomessage.Entity, err error) error {
		if err != nil && !tolerable(err) {
			return err
		}
		if part == nil {
			return nil
		}

		attachment, ok, err := extractAttachment(part)
		if err != nil {
			return err
		}
		if ok {
			msg.Attachments = append(msg.Attachments, attachment)
		}
		return nil
	})
	if err != nil {
		return model.ParsedMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return msg, nil
}

// ParseFile reads and parses the message stored at path.
func ParseFile(path string) (model.ParsedMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.ParsedMessage{}, fmt.Errorf("read message: %w", err)
	}
	return Parse(raw)
}

// extractAttachment reports whether part is a distinct named payload: a
// non-multipart entity with a Content-Disposition header and a filename.
func extractAttachment(part *gomessage.Entity) (model.Attachment, bool, error) {
	mediaType, _, _ := part.Header.ContentType()
	if strings.HasPrefix(mediaType, "multipart/") {
		return model.Attachment{}, false, nil
	}
	if part.Header.Get("Content-Disposition") == "" {
		return model.Attachment{}, false, nil
	}

	ah := mail.AttachmentHeader{Header: part.Header}
	filename, err := ah.Filename()
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return model.Attachment{}, false, fmt.Errorf("attachment filename: %w", err)
	}
	filename = decodeWords(filename)
	if filename == "" {
		return model.Attachment{}, false, nil
	}

	content, err := io.ReadAll(part.Body)
	if err != nil {
		return model.Attachment{}, false, fmt.Errorf("read attachment %q: %w", filename, err)
	}

	return model.Attachment{Filename: filename, Content: content}, true, nil
}

// decodeWords decodes RFC 2047 encoded words that some clients put into the
// Content-Type name parameter.
func decodeWords(s string) string {
	if !strings.Contains(s, "=?") {
		return strings.TrimSpace(s)
	}
	dec := mime.WordDecoder{CharsetReader: gomessage.CharsetReader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(decoded)
}

// tolerable reports errors that still leave a usable entity behind.
func tolerable(err error) bool {
	return gomessage.IsUnknownCharset(err) || gomessage.IsUnknownEncoding(err)
}

func headerText(h mail.Header, key string) string {
	value, err := h.Text(key)
	if err != nil {
		// Undecodable encoded words are kept verbatim.
		value = h.Get(key)
	}
	return strings.TrimSpace(value)
}
