package poll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"opdflow/internal/core"
	"opdflow/internal/errs"
)

// DefaultMinInterval is the floor applied to every policy interval.
const DefaultMinInterval = 100 * time.Millisecond

// Result is the outcome of one poll.
type Result[T any] struct {
	Probe     string
	Policy    string
	Succeeded bool
	// Final is the last observation, satisfying or not.
	Final    Observation[T]
	Attempts int
	Elapsed  time.Duration
	// Err is set when the poll was aborted by an infrastructure failure.
	Err error
}

// Failure returns nil on success, the infrastructure error if the poll
// was aborted, or a PolicyExhausted error carrying the last observation.
func (r Result[T]) Failure() error {
	if r.Succeeded {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	return &errs.Error{
		Kind: errs.PolicyExhausted,
		Op:   "poll " + r.Probe,
		Message: fmt.Sprintf("%s not satisfied after %d attempt(s) in %s (last observed: %s)",
			r.Policy, r.Attempts, r.Elapsed.Round(time.Millisecond), r.Final),
	}
}

// Poller runs probes. The zero value is usable: real clock, default
// minimum interval, no reporting, no logging.
type Poller struct {
	Clock       core.Clock
	MinInterval time.Duration
	Reporter    core.Reporter
	Logger      *zap.Logger
}

// NewPoller creates a Poller. Nil arguments fall back to defaults.
func NewPoller(clock core.Clock, reporter core.Reporter, logger *zap.Logger) *Poller {
	return &Poller{Clock: clock, Reporter: reporter, Logger: logger}
}

func (p *Poller) clock() core.Clock {
	if p == nil || p.Clock == nil {
		return core.RealClock{}
	}
	return p.Clock
}

func (p *Poller) minInterval() time.Duration {
	if p == nil || p.MinInterval <= 0 {
		return DefaultMinInterval
	}
	return p.MinInterval
}

func (p *Poller) logger() *zap.Logger {
	if p == nil || p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Poller) reporter() core.Reporter {
	if p == nil || p.Reporter == nil {
		return core.NullReporter
	}
	return p.Reporter
}

// Poll reads probe until policy.Until accepts a ready value, attempts
// run out, or policy.Timeout elapses. The probe is called at most
// policy.MaxAttempts times. A probe error other than NotReady, a failing
// Between hook or a cancelled ctx aborts the poll with Result.Err set.
func Poll[T any](ctx context.Context, p *Poller, probe Probe[T], policy Policy[T]) Result[T] {
	res := Result[T]{Probe: probe.Name(), Policy: policy.Name, Final: NotReady[T]()}
	clock := p.clock()
	log := p.logger().With(
		zap.String("probe", probe.Name()),
		zap.String("policy", policy.Name),
		zap.String("scenario", core.ScenarioFromContext(ctx)),
		zap.String("phase", core.PhaseFromContext(ctx)),
	)

	if err := policy.Validate(); err != nil {
		res.Err = errs.Wrap(errs.Infrastructure, "poll "+probe.Name(), "invalid policy", err)
		return res
	}

	interval := max(policy.Interval, p.minInterval())
	start := clock.Now()

	defer func() {
		p.report(ctx, res)
	}()

	for {
		res.Attempts++
		obs, err := probe.Read(ctx)
		if err != nil && !errs.Is(err, errs.NotReady) {
			res.Elapsed = clock.Since(start)
			res.Err = errs.Wrap(errs.Infrastructure, "poll "+probe.Name(),
				fmt.Sprintf("attempt %d", res.Attempts), err)
			log.Error("probe failed", zap.Int("attempt", res.Attempts), zap.Error(err))
			return res
		}
		if err != nil {
			obs = NotReady[T]()
		}
		res.Final = obs
		res.Elapsed = clock.Since(start)

		if obs.Ready && policy.Until(obs.Value) {
			res.Succeeded = true
			log.Debug("converged",
				zap.Int("attempt", res.Attempts),
				zap.Duration("elapsed", res.Elapsed))
			return res
		}

		if res.Attempts >= policy.MaxAttempts || (policy.Timeout > 0 && res.Elapsed >= policy.Timeout) {
			log.Warn("policy exhausted",
				zap.Int("attempts", res.Attempts),
				zap.Duration("elapsed", res.Elapsed),
				zap.Stringer("last", obs))
			return res
		}

		log.Debug("not converged",
			zap.Int("attempt", res.Attempts),
			zap.Duration("elapsed", res.Elapsed),
			zap.Stringer("observed", obs))

		wait := interval
		if policy.Timeout > 0 {
			wait = min(wait, policy.Timeout-res.Elapsed)
		}
		if err := clock.Sleep(ctx, wait); err != nil {
			res.Elapsed = clock.Since(start)
			res.Err = errs.Wrap(errs.Infrastructure, "poll "+probe.Name(), "interrupted", err)
			return res
		}

		if policy.Between != nil {
			if err := policy.Between(ctx); err != nil && !errs.Is(err, errs.NotReady) {
				res.Elapsed = clock.Since(start)
				res.Err = errs.Wrap(errs.Infrastructure, "poll "+probe.Name(), "between attempts", err)
				log.Error("side effect failed", zap.Int("attempt", res.Attempts), zap.Error(err))
				return res
			}
		}
	}
}

// Await polls and returns the final value together with Result.Failure.
func Await[T any](ctx context.Context, p *Poller, probe Probe[T], policy Policy[T]) (T, error) {
	res := Poll(ctx, p, probe, policy)
	return res.Final.Value, res.Failure()
}

func (p *Poller) report(ctx context.Context, res resultView) {
	ev := res.event()
	ev.Scenario = core.ScenarioFromContext(ctx)
	ev.Phase = core.PhaseFromContext(ctx)
	ev.Timestamp = p.clock().Now()
	p.reporter().Report(ev)
}

type resultView interface {
	event() core.Event
}

func (r Result[T]) event() core.Event {
	ev := core.Event{
		Kind:     core.EventProbe,
		Name:     r.Probe,
		Duration: r.Elapsed,
		Attempts: r.Attempts,
		Success:  r.Succeeded,
		Value:    r.Final.String(),
	}
	if err := r.Failure(); err != nil {
		ev.Error = err.Error()
		ev.Fatal = r.Err != nil
	}
	return ev
}
