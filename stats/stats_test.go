package stats

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observe(t *testing.T) {
	c := NewCollector()
	boom := errors.New("boom")

	events := []Event{
		{Type: EventTypeStarted, Total: 5},
		{Type: EventTypeScanned}, {Type: EventTypeArchived},
		{Type: EventTypeScanned}, {Type: EventTypeDuplicate},
		{Type: EventTypeScanned}, {Type: EventTypeIneligible},
		{Type: EventTypeScanned}, {Type: EventTypeUnmatched},
		{Type: EventTypeScanned}, {Type: EventTypeMalformed},
		{Type: EventTypeError, Err: boom},
	}
	for _, evt := range events {
		c.Observe(evt)
	}

	s := c.Snapshot()
	assert.Equal(t, 5, s.Pending)
	assert.Equal(t, 5, s.Scanned)
	assert.Equal(t, 1, s.Archived)
	assert.Equal(t, 1, s.Duplicates)
	assert.Equal(t, 3, s.Skipped())
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, boom, s.LastError)

	assert.Equal(t, float64(5), testutil.ToFloat64(c.outcomes.WithLabelValues("scanned")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.outcomes.WithLabelValues("archived")))
	assert.Equal(t, float64(5), testutil.ToFloat64(c.pending))
}

func TestSummary_LogAttrs(t *testing.T) {
	attrs := Summary{RunID: "r", Archived: 2}.LogAttrs()
	assert.Contains(t, attrs, "archived")
	assert.NotContains(t, attrs, "lastError")

	attrs = Summary{LastError: errors.New("x")}.LogAttrs()
	assert.Contains(t, attrs, "lastError")
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector()
	c.Observe(Event{Type: EventTypeScanned})
	c.Observe(Event{Type: EventTypeArchived})

	path := filepath.Join(t.TempDir(), "intake.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `homework_intake_messages_total{outcome="archived"} 1`)
}

func TestFanout(t *testing.T) {
	var got []EventType
	record := ObserverFunc(func(evt Event) { got = append(got, evt.Type) })
	c := NewCollector()

	Fanout{record, nil, c}.Observe(Event{Type: EventTypeScanned})
	assert.Equal(t, []EventType{EventTypeScanned}, got)
	assert.Equal(t, 1, c.Snapshot().Scanned)
}
