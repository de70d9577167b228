// Package progress prints a live status line while scenarios run.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"opdflow/internal/collector"
	"opdflow/internal/core"
)

// Status reports counters the collector only learns about afterwards.
// *coordinator.Coordinator implements it.
type Status interface {
	Active() int
}

// Progress redraws one status line every interval until stopped.
type Progress struct {
	collector *collector.Collector
	status    Status
	clock     core.Clock
	interval  time.Duration
	quiet     bool

	mu      sync.Mutex
	out     io.Writer
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewProgress(c *collector.Collector, quiet bool) *Progress {
	return &Progress{
		collector: c,
		clock:     core.RealClock{},
		interval:  time.Second,
		quiet:     quiet,
		out:       os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = w
}

// Track adds the number of running scenarios to the status line.
func (p *Progress) Track(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// Start begins redrawing. It does nothing in quiet mode or when already
// started.
func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.started = p.clock.Now()
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

func (p *Progress) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.redraw()
		}
	}
}

func (p *Progress) redraw() {
	m := p.collector.Compute()
	p.mu.Lock()
	defer p.mu.Unlock()
	active := 0
	if p.status != nil {
		active = p.status.Active()
	}
	elapsed := p.clock.Since(p.started).Round(time.Second)
	fmt.Fprintf(p.out, "\033[K%s\r", Line(m, elapsed, active))
}

// Line renders one status line.
func Line(m *collector.Metrics, elapsed time.Duration, active int) string {
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("[%02d:%02d] Scenarios: %d running, %d done (%d failed) | Phases: %d | Polls: %d (%d exhausted)",
		mins, secs, active, m.Scenarios, m.ScenariosFailed, m.Phases, m.Polls, m.Exhausted+m.Aborted)
}

// Stop halts redrawing and clears the line. It is safe to call more than
// once and without Start.
func (p *Progress) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, "\033[K")
}

// Print writes a message on its own line above the status line.
func (p *Progress) Print(message string) {
	p.Printf("%s", message)
}

func (p *Progress) Printf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\033[K"+format+"\n", args...)
}
