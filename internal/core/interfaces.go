// Package core defines the fundamental interfaces and types shared by the
// poller, the scenario orchestrator and the collector.
package core

import "time"

// EventKind classifies what an Event measures.
type EventKind string

const (
	EventProbe    EventKind = "probe"    // one poll, start to finish
	EventPhase    EventKind = "phase"    // one phase reaching a terminal state
	EventScenario EventKind = "scenario" // one scenario run
)

// Event represents a single measurement emitted while running a scenario.
type Event struct {
	Kind      EventKind
	Scenario  string
	Phase     string
	Name      string // probe or phase name
	Timestamp time.Time
	Duration  time.Duration
	Attempts  int // probe invocations, EventProbe only
	Success   bool
	Fatal     bool
	Error     string
	Value     string // last observed value, rendered
}

// Reporter is the interface pollers and orchestrators use to send events to the Collector.
type Reporter interface {
	Report(Event)
}

// NullReporter discards all events.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}
