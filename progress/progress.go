package progress

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/homework-intake/stats"
)

// Bar renders a terminal progress bar for one intake pass. It starts on
// the first started event, so it can be registered before the pending
// count is known.
type Bar struct {
	mu      sync.Mutex
	pb      *pterm.ProgressbarPrinter
	total   int
	enabled bool
	writer  io.Writer
	started time.Time
}

// New creates a bar; a disabled bar ignores every event.
func New(enabled bool) *Bar {
	return &Bar{enabled: enabled}
}

// WithWriter redirects bar output, mostly for tests.
func (b *Bar) WithWriter(w io.Writer) *Bar {
	b.writer = w
	return b
}

func (b *Bar) Observe(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeStarted:
		b.start(evt.Total)
	case stats.EventTypeScanned:
		if b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.File != "" {
			title := filepath.Base(evt.File)
			if len(title) > 40 {
				title = title[:37] + "..."
			}
			b.pb.UpdateTitle("Processing: " + title)
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			b.printer(pterm.Error).Printf("Error: %v\n", evt.Err)
		}
	}
}

func (b *Bar) start(total int) {
	b.total = total
	b.started = time.Now()
	b.printer(pterm.Info).Printf("Pending submissions: %d\n", total)
	if total == 0 {
		return
	}

	pb := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Processing submissions")
	if b.writer != nil {
		pb = pb.WithWriter(b.writer)
	}
	started, err := pb.Start()
	if err != nil {
		return
	}
	b.pb = started
}

// Stop finalizes the bar and prints the pass summary.
func (b *Bar) Stop(summary stats.Summary) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb != nil {
		if b.pb.Current < b.total {
			b.pb.Current = b.total
		}
		_, _ = b.pb.Stop()
		b.pb = nil
	}

	info := b.printer(pterm.Info)
	info.Printf("Duration: %v\n", time.Since(b.started).Round(time.Millisecond))
	info.Printf("Scanned: %d\n", summary.Scanned)
	info.Printf("Archived: %d\n", summary.Archived)
	info.Printf("Dry-run: %d\n", summary.DryRun)
	info.Printf("Duplicates (skipped): %d\n", summary.Duplicates)
	info.Printf("Left in intake: %d\n", summary.Skipped())
	info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		b.printer(pterm.Error).Printf("Last error: %v\n", summary.LastError)
	}
}

func (b *Bar) printer(p pterm.PrefixPrinter) *pterm.PrefixPrinter {
	if b.writer != nil {
		return p.WithWriter(b.writer)
	}
	return &p
}
