package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dhcgn/homework-intake/model"
)

// JSONLedger persists the ledger as one JSON object keyed by submission key.
// Object members keep their recording order on disk.
type JSONLedger struct {
	*MemoryLedger
	path string
}

func OpenJSON(path string) (*JSONLedger, error) {
	ledger := &JSONLedger{
		MemoryLedger: NewMemoryLedger(),
		path:         path,
	}
	if err := ledger.load(); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (j *JSONLedger) Path() string {
	return j.path
}

func (j *JSONLedger) load() error {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrLedgerIO, j.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("%w: parse %s: %w", ErrLedgerIO, j.path, err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: parse %s: %w", ErrLedgerIO, j.path, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: parse %s: unexpected token %v", ErrLedgerIO, j.path, tok)
		}

		var rec model.LedgerRecord
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("%w: parse %s record %q: %w", ErrLedgerIO, j.path, key, err)
		}
		j.restore(key, rec)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return fmt.Errorf("%w: parse %s: %w", ErrLedgerIO, j.path, err)
	}

	return nil
}

// Persist writes the full snapshot to a temporary file and renames it over
// the previous one.
func (j *JSONLedger) Persist() error {
	data, err := encodeSnapshot(j.Entries())
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrLedgerIO, err)
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create ledger directory: %w", ErrLedgerIO, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(j.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrLedgerIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrLedgerIO, tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrLedgerIO, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrLedgerIO, tmpPath, err)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrLedgerIO, j.path, err)
	}

	j.markClean()
	return nil
}

func encodeSnapshot(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n    ")

		key, err := marshal(e.Key, "")
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(": ")

		value, err := marshal(e.Record, "    ")
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	if len(entries) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func marshal(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return fmt.Errorf("unexpected end of document, want %q", want)
	}
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("unexpected token %v, want %q", tok, want)
	}
	return nil
}
