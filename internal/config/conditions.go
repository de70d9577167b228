package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"opdflow/internal/poll"
)

// ConditionClass names a kind of eventually-consistent condition. Every
// wait in the suite belongs to exactly one class and uses its policy.
type ConditionClass string

const (
	PageReady         ConditionClass = "page_ready"
	EntityCreated     ConditionClass = "entity_created"
	TargetPropagation ConditionClass = "target_propagation"
	CADisplay         ConditionClass = "ca_display"
	PointAccrual      ConditionClass = "point_accrual"
	PreviewImage      ConditionClass = "preview_image"
	FieldEnabled      ConditionClass = "field_enabled"
	StatusTransition  ConditionClass = "status_transition"

	// AlgorithmRegistration is the QA tool registering a doctor for CA
	// placements.
	AlgorithmRegistration ConditionClass = "algorithm_registration"
	// Cleanup covers the closing phases that undo what a scenario set up.
	Cleanup ConditionClass = "cleanup"
)

// Mode decides whether exhausting a condition aborts the scenario.
type Mode string

const (
	ModeAssert     Mode = "assert"
	ModeBestEffort Mode = "best_effort"
)

// Condition is the convergence policy of one class.
type Condition struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Mode        Mode          `yaml:"mode"`
}

func (c Condition) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.Interval < 0 || c.Timeout < 0 {
		return fmt.Errorf("interval and timeout must not be negative")
	}
	switch c.Mode {
	case ModeAssert, ModeBestEffort:
	default:
		return fmt.Errorf("mode %q must be %s or %s", c.Mode, ModeAssert, ModeBestEffort)
	}
	return nil
}

// BestEffort reports whether the class is configured as best-effort.
func (c Condition) BestEffort() bool { return c.Mode == ModeBestEffort }

// Conditions maps each class to its policy.
type Conditions map[ConditionClass]Condition

// DefaultConditions returns the tuned policies for the QA environment.
func DefaultConditions() Conditions {
	return Conditions{
		PageReady:         {MaxAttempts: 3, Interval: 5 * time.Second, Mode: ModeAssert},
		EntityCreated:     {MaxAttempts: 20, Interval: time.Second, Mode: ModeAssert},
		TargetPropagation: {MaxAttempts: 6, Interval: 10 * time.Second, Mode: ModeAssert},
		CADisplay:         {MaxAttempts: 10, Interval: 5 * time.Second, Mode: ModeBestEffort},
		PointAccrual:      {MaxAttempts: 10, Interval: 3 * time.Second, Timeout: 30 * time.Second, Mode: ModeAssert},
		PreviewImage:      {MaxAttempts: 18, Interval: 5 * time.Second, Mode: ModeAssert},
		FieldEnabled:      {MaxAttempts: 5, Interval: 2 * time.Second, Mode: ModeAssert},
		StatusTransition:  {MaxAttempts: 5, Interval: 3 * time.Second, Mode: ModeAssert},

		AlgorithmRegistration: {MaxAttempts: 3, Interval: 5 * time.Second, Mode: ModeBestEffort},
		Cleanup:               {MaxAttempts: 3, Interval: 5 * time.Second, Mode: ModeBestEffort},
	}
}

// Get returns the condition for class, falling back to the default
// policy, then to a single attempt.
func (c Conditions) Get(class ConditionClass) Condition {
	if cond, ok := c[class]; ok {
		return cond
	}
	if cond, ok := DefaultConditions()[class]; ok {
		return cond
	}
	return Condition{MaxAttempts: 1, Mode: ModeAssert}
}

// Classes returns the configured classes in sorted order.
func (c Conditions) Classes() []ConditionClass {
	out := make([]ConditionClass, 0, len(c))
	for class := range c {
		out = append(out, class)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Policy builds a poll policy for class with the given predicate and
// optional between-attempts side effect.
func Policy[T any](c Conditions, class ConditionClass, until func(T) bool, between func(context.Context) error) poll.Policy[T] {
	cond := c.Get(class)
	return poll.Policy[T]{
		Name:        string(class),
		MaxAttempts: cond.MaxAttempts,
		Interval:    cond.Interval,
		Timeout:     cond.Timeout,
		Until:       until,
		Between:     between,
	}
}
