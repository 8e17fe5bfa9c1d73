package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports document progress of a run to a terminal.
// It is safe for concurrent use by pipeline workers.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	current        int
	failed         int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// total: total number of documents to process
// reportInterval: report progress every N documents
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.failed = 0
	p.lastReported = 0
}

// Done records one finished document. ok is false for failed documents.
func (p *ProgressTracker) Done(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	if !ok {
		p.failed++
	}
	p.advance(1)
}

// Increment increases the current progress by the specified amount.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.advance(delta)
}

// Finish prints the final progress line. Cancelled runs stop short of total.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// advance must be called with lock held.
func (p *ProgressTracker) advance(delta int) {
	p.current += delta
	if p.current > p.total {
		p.current = p.total
	}
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %d failed - %.1f documents/s",
		p.current, p.total, percentage, p.failed, rate)
}
