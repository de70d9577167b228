package core

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
)

// Variables provides named values for template substitution.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Outputs carries the values a phase hands to the phases after it,
// typically entity IDs created on the server.
type Outputs map[string]string

func (o Outputs) Get(key string) (any, bool) {
	v, ok := o[key]
	return v, ok
}

// Set stores value rendered as text. JSON numbers arrive as float64 and
// are rendered without an exponent so large IDs survive.
func (o Outputs) Set(key string, value any) {
	switch v := value.(type) {
	case float64:
		o[key] = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		o[key] = fmt.Sprint(value)
	}
}

// Clone returns an independent copy. A nil receiver yields an empty map.
func (o Outputs) Clone() Outputs {
	out := make(Outputs, len(o))
	maps.Copy(out, o)
	return out
}

// Merge copies every key of other into o, overwriting existing keys.
func (o Outputs) Merge(other Outputs) {
	maps.Copy(o, other)
}

// Keys returns the keys in sorted order.
func (o Outputs) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type contextKey string

const (
	scenarioContextKey contextKey = "scenario"
	phaseContextKey    contextKey = "phase"
	actorContextKey    contextKey = "actor"
)

func ContextWithScenario(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, scenarioContextKey, name)
}

func ScenarioFromContext(ctx context.Context) string {
	name, _ := ctx.Value(scenarioContextKey).(string)
	return name
}

func ContextWithPhase(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, phaseContextKey, name)
}

func PhaseFromContext(ctx context.Context) string {
	name, _ := ctx.Value(phaseContextKey).(string)
	return name
}

func ContextWithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorContextKey, name)
}

func ActorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(actorContextKey).(string)
	return name
}
