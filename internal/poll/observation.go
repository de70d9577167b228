// Package poll drives probes of eventually-consistent state until a
// convergence policy is satisfied or exhausted.
package poll

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// NotReadyText is how a not-ready observation renders.
const NotReadyText = "NOT_READY"

const maxRenderedValue = 200

// Observation is one probe reading. Ready is false when the condition
// is not observable yet; Value is then the zero value.
type Observation[T any] struct {
	Value T
	Ready bool
}

// Ready returns a ready observation of v.
func Ready[T any](v T) Observation[T] {
	return Observation[T]{Value: v, Ready: true}
}

// NotReady returns the not-ready sentinel.
func NotReady[T any]() Observation[T] {
	return Observation[T]{}
}

func (o Observation[T]) String() string {
	if !o.Ready {
		return NotReadyText
	}
	s := fmt.Sprint(o.Value)
	if utf8.RuneCountInString(s) > maxRenderedValue {
		s = string([]rune(s)[:maxRenderedValue]) + "..."
	}
	return s
}

// Probe is a named read of remote state. Transient absence is reported
// as a not-ready observation, never as an error; errors are reserved
// for infrastructure failures.
type Probe[T any] interface {
	Name() string
	Read(ctx context.Context) (Observation[T], error)
}

// ProbeFunc adapts a function to a Probe via Named.
type ProbeFunc[T any] func(ctx context.Context) (Observation[T], error)

type namedProbe[T any] struct {
	name string
	fn   ProbeFunc[T]
}

// Named wraps fn as a Probe called name.
func Named[T any](name string, fn ProbeFunc[T]) Probe[T] {
	return namedProbe[T]{name: name, fn: fn}
}

func (p namedProbe[T]) Name() string { return p.name }

func (p namedProbe[T]) Read(ctx context.Context) (Observation[T], error) {
	return p.fn(ctx)
}
