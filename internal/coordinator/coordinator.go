// Package coordinator runs many scenarios with bounded parallelism.
package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"opdflow/internal/core"
	"opdflow/internal/errs"
	"opdflow/internal/scenario"
)

// Runner runs a single scenario. *scenario.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, sc scenario.Scenario) *scenario.Report
}

type Coordinator struct {
	runner   Runner
	workers  int
	reporter core.Reporter
	logger   *zap.Logger
	active   atomic.Int32
	finished atomic.Int32
}

// NewCoordinator runs scenarios through runner, at most workers at a time.
func NewCoordinator(runner Runner, workers int, reporter core.Reporter, logger *zap.Logger) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	if reporter == nil {
		reporter = core.NullReporter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{runner: runner, workers: workers, reporter: reporter, logger: logger}
}

// Run executes every scenario and returns their reports in input order.
// Scenarios share nothing but the runner; one scenario failing does not
// stop the others. Scenarios not yet started when ctx is cancelled are
// reported as failed.
func (c *Coordinator) Run(ctx context.Context, scenarios []scenario.Scenario) []*scenario.Report {
	reports := make([]*scenario.Report, len(scenarios))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, sc := range scenarios {
		g.Go(func() error {
			c.active.Add(1)
			defer func() {
				c.active.Add(-1)
				c.finished.Add(1)
			}()
			defer c.recoverPanic(sc, &reports[i])

			if err := ctx.Err(); err != nil {
				reports[i] = notRun(sc, errs.Wrap(errs.Infrastructure, sc.Name, "not started", err))
				return nil
			}
			c.logger.Debug("scenario dispatched", zap.String("scenario", sc.Name))
			reports[i] = c.runner.Run(ctx, sc)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// Active returns the number of scenarios currently running.
func (c *Coordinator) Active() int {
	return int(c.active.Load())
}

// Finished returns the number of scenarios that have completed.
func (c *Coordinator) Finished() int {
	return int(c.finished.Load())
}

// recoverPanic turns a panic escaping the runner into a failed report.
func (c *Coordinator) recoverPanic(sc scenario.Scenario, slot **scenario.Report) {
	if r := recover(); r != nil {
		err := errs.New(errs.Infrastructure, sc.Name, fmt.Sprintf("panic: %v", r))
		c.logger.Error("scenario panicked", zap.String("scenario", sc.Name), zap.Any("panic", r))
		*slot = notRun(sc, err)
		c.reporter.Report(core.Event{
			Kind:     core.EventScenario,
			Scenario: sc.Name,
			Name:     sc.Name,
			Fatal:    true,
			Error:    err.Error(),
		})
	}
}

func notRun(sc scenario.Scenario, err error) *scenario.Report {
	r := &scenario.Report{Scenario: sc.Name}
	for _, p := range sc.Phases {
		r.Phases = append(r.Phases, scenario.PhaseReport{Name: p.Name, State: scenario.Pending})
	}
	r.Failures = []scenario.Failure{{
		Kind:    errs.KindOf(err),
		Fatal:   true,
		Message: err.Error(),
	}}
	return r
}
