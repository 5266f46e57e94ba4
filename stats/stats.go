package stats

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventTypeStarted    EventType = "started"
	EventTypeScanned    EventType = "scanned"
	EventTypeDuplicate  EventType = "duplicate"
	EventTypeMalformed  EventType = "malformed"
	EventTypeIneligible EventType = "ineligible"
	EventTypeUnmatched  EventType = "unmatched"
	EventTypeDryRun     EventType = "dry_run"
	EventTypeArchived   EventType = "archived"
	EventTypeError      EventType = "error"
)

// Event is emitted by the pipeline for every decision it takes on a file.
type Event struct {
	Type      EventType
	File      string
	Key       string
	StudentID string
	Total     int // set on EventTypeStarted
	Err       error
	Detail    string
}

// Observer receives pipeline events synchronously.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(evt Event) {
	f(evt)
}

type Summary struct {
	RunID      string
	Pending    int
	Scanned    int
	Duplicates int
	Malformed  int
	Ineligible int
	Unmatched  int
	DryRun     int
	Archived   int
	Errors     int
	LastError  error
}

// Skipped counts files left in the intake directory on purpose.
func (s Summary) Skipped() int {
	return s.Malformed + s.Ineligible + s.Unmatched
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"runID", s.RunID,
		"pending", s.Pending,
		"scanned", s.Scanned,
		"archived", s.Archived,
		"duplicates", s.Duplicates,
		"malformed", s.Malformed,
		"ineligible", s.Ineligible,
		"unmatched", s.Unmatched,
		"dryRun", s.DryRun,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector folds events into a Summary and mirrors them into Prometheus
// counters on its own registry.
type Collector struct {
	mu       sync.Mutex
	summary  Summary
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	pending  prometheus.Gauge
}

func NewCollector() *Collector {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homework_intake",
		Name:      "messages_total",
		Help:      "Intake messages by processing outcome.",
	}, []string{"outcome"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homework_intake",
		Name:      "pending_messages",
		Help:      "Message files found in the intake directory at the start of the pass.",
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(outcomes, pending)

	return &Collector{registry: registry, outcomes: outcomes, pending: pending}
}

func (c *Collector) Observe(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch evt.Type {
	case EventTypeStarted:
		c.summary.Pending = evt.Total
		c.pending.Set(float64(evt.Total))
		return
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeMalformed:
		c.summary.Malformed++
	case EventTypeIneligible:
		c.summary.Ineligible++
	case EventTypeUnmatched:
		c.summary.Unmatched++
	case EventTypeDryRun:
		c.summary.DryRun++
	case EventTypeArchived:
		c.summary.Archived++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	default:
		return
	}
	c.outcomes.WithLabelValues(string(evt.Type)).Inc()
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the counters in the text exposition format, suitable
// for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Fanout forwards every event to each observer in order.
type Fanout []Observer

func (f Fanout) Observe(evt Event) {
	for _, o := range f {
		if o != nil {
			o.Observe(evt)
		}
	}
}
