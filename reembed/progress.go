package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker writes a single self-overwriting progress line for a
// backfill. It is safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	w        io.Writer
	label    string
	total    int
	interval int
	now      func() time.Time

	done     int
	reported int
	start    time.Time
	running  bool
}

// NewProgressTracker creates a tracker for total records that reports
// every interval records. label names what is counted, e.g. "Embedded".
func NewProgressTracker(w io.Writer, label string, total, interval int) *ProgressTracker {
	return &ProgressTracker{
		w:        w,
		label:    label,
		total:    total,
		interval: max(interval, 1),
		now:      time.Now,
	}
}

// Start resets the count and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = p.now()
	p.running = true
	p.done = 0
	p.reported = 0
}

// Increment counts n more records. Calls before Start are ignored.
func (p *ProgressTracker) Increment(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done = min(p.done+n, p.total)
	if p.done-p.reported >= p.interval {
		p.writeLine()
		p.reported = p.done
	}
}

// Current returns the number of records counted so far.
func (p *ProgressTracker) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Finish counts the remaining records and ends the progress line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done = p.total
	p.writeLine()
	fmt.Fprintln(p.w)
	p.running = false
}

// Elapsed returns the time since Start, or zero before Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start.IsZero() {
		return 0
	}
	return p.now().Sub(p.start)
}

// writeLine must be called with mu held.
func (p *ProgressTracker) writeLine() {
	elapsed := p.now().Sub(p.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.done) / elapsed
	}
	percent := 100.0
	if p.total > 0 {
		percent = float64(p.done) / float64(p.total) * 100
	}

	line := fmt.Sprintf("\r%s: %d/%d (%.1f%%) - %.1f records/s", p.label, p.done, p.total, percent, rate)
	if rate > 0 && p.done < p.total {
		eta := time.Duration(float64(p.total-p.done) / rate * float64(time.Second))
		line += fmt.Sprintf(", eta %v", eta.Round(time.Second))
	}
	fmt.Fprint(p.w, line)
}
