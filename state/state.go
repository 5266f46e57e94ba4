package state

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dhcgn/homework-intake/model"
)

var (
	// ErrLedgerIO marks failures to load or persist the ledger store.
	ErrLedgerIO = errors.New("ledger store I/O failed")
	// ErrAlreadyRecorded is returned when a key is recorded twice. The first
	// record is left untouched.
	ErrAlreadyRecorded = errors.New("submission key already recorded")
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Ledger maps submission keys to archived submissions. Entries are never
// updated or removed.
type Ledger interface {
	Contains(key string) bool
	Record(key string, rec model.LedgerRecord) error
	Get(key string) (model.LedgerRecord, bool)
	// Entries returns all records in the order they were recorded.
	Entries() []Entry
	Len() int
	// Dirty reports whether records were added since the last load or persist.
	Dirty() bool
	Persist() error
	Close() error
}

type Entry struct {
	Key    string
	Record model.LedgerRecord
}

// Records returns the records of entries, dropping the keys.
func Records(entries []Entry) []model.LedgerRecord {
	out := make([]model.LedgerRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Record)
	}
	return out
}

// Options selects and locates the ledger store.
type Options struct {
	Backend string
	Path    string
}

// Open restores the ledger from its store. A store that does not exist yet
// yields an empty ledger.
func Open(opts Options) (Ledger, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("ledger path is empty")
	}

	switch opts.Backend {
	case "", BackendJSON:
		return OpenJSON(opts.Path)
	case BackendSQLite:
		return OpenSQLite(opts.Path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", opts.Backend)
	}
}

// MemoryLedger is the in-memory ledger the persistent stores build on.
type MemoryLedger struct {
	mu      sync.RWMutex
	keys    []string
	records map[string]model.LedgerRecord
	pending []string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]model.LedgerRecord)}
}

func (m *MemoryLedger) Contains(key string) bool {
	m.mu.RLock()
	_, ok := m.records[key]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryLedger) Record(key string, rec model.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[key]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRecorded, key)
	}
	m.put(key, rec)
	m.pending = append(m.pending, key)
	return nil
}

func (m *MemoryLedger) Get(key string) (model.LedgerRecord, bool) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return model.LedgerRecord{}, false
	}
	return cloneRecord(rec), true
}

func (m *MemoryLedger) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(m.keys)
}

func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	n := len(m.keys)
	m.mu.RUnlock()
	return n
}

func (m *MemoryLedger) Dirty() bool {
	m.mu.RLock()
	dirty := len(m.pending) > 0
	m.mu.RUnlock()
	return dirty
}

// Persist marks the ledger clean; there is no backing store.
func (m *MemoryLedger) Persist() error {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) Close() error {
	return nil
}

// restore adds a record read back from a store. The first occurrence of a key
// wins and the record is not marked pending.
func (m *MemoryLedger) restore(key string, rec model.LedgerRecord) {
	m.mu.Lock()
	if _, exists := m.records[key]; !exists {
		m.put(key, rec)
	}
	m.mu.Unlock()
}

func (m *MemoryLedger) put(key string, rec model.LedgerRecord) {
	m.keys = append(m.keys, key)
	m.records[key] = cloneRecord(rec)
}

func (m *MemoryLedger) pendingEntries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(m.pending)
}

func (m *MemoryLedger) markClean() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

func (m *MemoryLedger) entriesLocked(keys []string) []Entry {
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Record: cloneRecord(m.records[k])})
	}
	return out
}

func cloneRecord(rec model.LedgerRecord) model.LedgerRecord {
	paths := make([]string, len(rec.AttachmentPaths))
	copy(paths, rec.AttachmentPaths)
	rec.AttachmentPaths = paths
	return rec
}
