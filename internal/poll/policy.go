package poll

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Policy bounds how long a probe is polled and decides when its value
// is acceptable. Keeping MaxAttempts*Interval consistent with Timeout
// is the caller's job; whichever bound is hit first ends the poll.
type Policy[T any] struct {
	// Name identifies the condition class, e.g. "target_propagation".
	Name        string
	MaxAttempts int
	Interval    time.Duration
	// Timeout bounds total wall-clock time. Zero means attempts only.
	Timeout time.Duration
	// Until accepts a ready value.
	Until func(T) bool
	// Between runs after each sleep and before the next attempt,
	// typically a page reload. A NotReady error from it is ignored.
	Between func(ctx context.Context) error
}

// Validate checks the policy is usable.
func (p Policy[T]) Validate() error {
	var problems []error
	if p.MaxAttempts < 1 {
		problems = append(problems, fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts))
	}
	if p.Interval < 0 {
		problems = append(problems, fmt.Errorf("interval must not be negative, got %v", p.Interval))
	}
	if p.Timeout < 0 {
		problems = append(problems, fmt.Errorf("timeout must not be negative, got %v", p.Timeout))
	}
	if p.Until == nil {
		problems = append(problems, errors.New("success predicate is required"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("policy %q: %w", p.Name, errors.Join(problems...))
	}
	return nil
}

// With returns a copy of p using until as its predicate.
func (p Policy[T]) With(until func(T) bool) Policy[T] {
	p.Until = until
	return p
}

// Reloading returns a copy of p running between after every sleep.
func (p Policy[T]) Reloading(between func(ctx context.Context) error) Policy[T] {
	p.Between = between
	return p
}

// Once is a single fast-fail probe.
func Once[T any](until func(T) bool) Policy[T] {
	return Policy[T]{Name: "once", MaxAttempts: 1, Until: until}
}

// Present accepts any ready value.
func Present[T any]() func(T) bool {
	return func(T) bool { return true }
}

// Equals accepts values equal to want.
func Equals[T comparable](want T) func(T) bool {
	return func(v T) bool { return v == want }
}

// AtLeast accepts values >= min.
func AtLeast[T cmp.Ordered](min T) func(T) bool {
	return func(v T) bool { return v >= min }
}

// Contains accepts strings containing sub.
func Contains(sub string) func(string) bool {
	return func(v string) bool { return strings.Contains(v, sub) }
}

// Lacks accepts strings not containing sub.
func Lacks(sub string) func(string) bool {
	return func(v string) bool { return !strings.Contains(v, sub) }
}

// IsTrue accepts true.
func IsTrue(v bool) bool { return v }

// IsFalse accepts false.
func IsFalse(v bool) bool { return !v }
