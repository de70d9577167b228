// Package collector aggregates probe and phase events and computes
// convergence metrics.
package collector

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"opdflow/internal/core"
)

// queueSize bounds the events waiting to be stored. A suite run produces
// a few hundred poll attempts at most.
const queueSize = 1000

// Collector is the core.Reporter shared by every poller and orchestrator
// of a run.
type Collector struct {
	queue   chan core.Event
	stored  chan struct{}
	dropped atomic.Int64
	clock   core.Clock
	once    sync.Once

	mu      sync.Mutex
	events  []core.Event
	started time.Time
	ended   time.Time
}

// NewCollector starts a collector timed by the wall clock.
func NewCollector() *Collector {
	return NewCollectorWithClock(core.RealClock{})
}

// NewCollectorWithClock starts a collector timed by clock.
func NewCollectorWithClock(clock core.Clock) *Collector {
	c := &Collector{
		queue:   make(chan core.Event, queueSize),
		stored:  make(chan struct{}),
		clock:   clock,
		started: clock.Now(),
	}
	go c.drain()
	return c
}

func (c *Collector) drain() {
	defer close(c.stored)
	for e := range c.queue {
		c.mu.Lock()
		c.events = append(c.events, e)
		c.mu.Unlock()
	}
}

// Report queues event without blocking the poller. Events arriving on a
// full queue are counted in DroppedEvents.
func (c *Collector) Report(event core.Event) {
	select {
	case c.queue <- event:
	default:
		c.dropped.Add(1)
	}
}

// Close freezes the run duration and waits until queued events are
// stored. Later calls do nothing.
func (c *Collector) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.ended = c.clock.Now()
		c.mu.Unlock()
		close(c.queue)
		<-c.stored
	})
}

// Events returns a copy of the stored events.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

func (c *Collector) DroppedEvents() int64 {
	return c.dropped.Load()
}

// Duration is the run time so far, or the total once closed.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	ended := c.ended
	c.mu.Unlock()
	if ended.IsZero() {
		return c.clock.Since(c.started)
	}
	return ended.Sub(c.started)
}

// Compute returns metrics over the events stored so far.
func (c *Collector) Compute() *Metrics {
	return ComputeMetrics(c.Events(), c.Duration())
}
