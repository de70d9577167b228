package probe

import (
	"context"

	"opdflow/internal/config"
	"opdflow/internal/poll"
)

// Waiter binds a poller to the configured condition classes so callers
// name a class instead of choosing attempts and intervals.
type Waiter struct {
	Poller     *poll.Poller
	Conditions config.Conditions
}

// Await polls p under the policy of class.
func Await[T any](ctx context.Context, w Waiter, class config.ConditionClass, p poll.Probe[T], until func(T) bool, between func(context.Context) error) (T, error) {
	return poll.Await(ctx, w.Poller, p, config.Policy(w.Conditions, class, until, between))
}

// BestEffort reports whether class is configured as best-effort.
func (w Waiter) BestEffort(class config.ConditionClass) bool {
	return w.Conditions.Get(class).BestEffort()
}
