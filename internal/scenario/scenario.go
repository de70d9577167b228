// Package scenario runs a business flow as an ordered list of phases.
// Each phase opens the browser sessions it needs, runs, and records a
// terminal state; the first fatal failure stops the scenario.
package scenario

import (
	"context"
	"fmt"
	"time"

	"opdflow/internal/actor"
	"opdflow/internal/config"
	"opdflow/internal/core"
)

// State is where a phase is in its lifecycle.
type State string

const (
	Pending          State = "pending"
	Running          State = "running"
	Succeeded        State = "succeeded"
	FailedFatal      State = "failed_fatal"
	FailedBestEffort State = "failed_best_effort"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, FailedFatal, FailedBestEffort:
		return true
	}
	return false
}

// canMove lists the legal transitions. Terminal states have none.
var canMove = map[State][]State{
	Pending: {Running},
	Running: {Succeeded, FailedFatal, FailedBestEffort},
}

func (s State) next(to State) (State, error) {
	for _, allowed := range canMove[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("illegal phase transition %s -> %s", s, to)
}

// RunFunc is the body of a phase. The returned outputs become visible to
// later phases.
type RunFunc func(ctx context.Context, pc *PhaseContext) (core.Outputs, error)

// Phase is one step of a scenario.
type Phase struct {
	Name string
	// BestEffort phases record failures without aborting the scenario,
	// unless the failure is Infrastructure.
	BestEffort bool
	// Class makes the phase best-effort when its condition class is
	// configured that way.
	Class  config.ConditionClass
	Actors []actor.Spec
	Run    RunFunc
}

func (p Phase) bestEffort(suite *config.Suite) bool {
	if p.BestEffort {
		return true
	}
	if p.Class == "" || suite == nil {
		return false
	}
	return suite.Conditions.Get(p.Class).BestEffort()
}

// Scenario is a named, ordered list of phases.
type Scenario struct {
	Name        string
	Description string
	// Timeout bounds the whole scenario. Zero uses execution.scenario_timeout.
	Timeout time.Duration
	Phases  []Phase
}

// Validate checks names are set and unique.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Phases) == 0 {
		return fmt.Errorf("scenario %s has no phases", s.Name)
	}
	seen := make(map[string]bool, len(s.Phases))
	for i, p := range s.Phases {
		if p.Name == "" {
			return fmt.Errorf("scenario %s: phase %d has no name", s.Name, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("scenario %s: duplicate phase %s", s.Name, p.Name)
		}
		seen[p.Name] = true
		if p.Run == nil {
			return fmt.Errorf("scenario %s: phase %s has no run function", s.Name, p.Name)
		}
		actors := make(map[string]bool, len(p.Actors))
		for _, a := range p.Actors {
			if a.Name == "" || actors[a.Name] {
				return fmt.Errorf("scenario %s: phase %s: actor names must be set and unique", s.Name, p.Name)
			}
			actors[a.Name] = true
		}
	}
	return nil
}
