package scenario

import (
	"fmt"

	"go.uber.org/zap"

	"opdflow/internal/actor"
	"opdflow/internal/config"
	"opdflow/internal/core"
	"opdflow/internal/errs"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

// PhaseContext is what a running phase sees.
type PhaseContext struct {
	Suite    *config.Suite
	Scenario string
	Phase    string
	RunID    string
	// Inputs are the merged outputs of earlier phases. Phases must not
	// modify them; they return new outputs instead.
	Inputs core.Outputs
	Poller *poll.Poller
	Logger *zap.Logger

	sessions map[string]actor.Session
}

// Session returns the session opened for the named actor.
func (pc *PhaseContext) Session(name string) (actor.Session, error) {
	s, ok := pc.sessions[name]
	if !ok {
		return nil, errs.New(errs.Infrastructure, pc.op(), fmt.Sprintf("no session %q opened for this phase", name))
	}
	return s, nil
}

// Input returns an output of an earlier phase.
func (pc *PhaseContext) Input(key string) (string, error) {
	v, ok := pc.Inputs[key]
	if !ok || v == "" {
		return "", errs.New(errs.Infrastructure, pc.op(), fmt.Sprintf("input %q was not produced by an earlier phase", key))
	}
	return v, nil
}

// Waiter polls under the suite's condition classes.
func (pc *PhaseContext) Waiter() probe.Waiter {
	var conds config.Conditions
	if pc.Suite != nil {
		conds = pc.Suite.Conditions
	}
	return probe.Waiter{Poller: pc.Poller, Conditions: conds}
}

// Check returns an Assertion error when ok is false.
func (pc *PhaseContext) Check(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return errs.Assertf(pc.op(), format, args...)
}

// Expect compares an observed value with the expected one.
func Expect[T comparable](pc *PhaseContext, what string, got, want T) error {
	return pc.Check(got == want, "%s: got %v, want %v", what, got, want)
}

func (pc *PhaseContext) op() string {
	return pc.Scenario + "/" + pc.Phase
}
