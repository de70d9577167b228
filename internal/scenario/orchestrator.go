package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opdflow/internal/actor"
	"opdflow/internal/artifacts"
	"opdflow/internal/config"
	"opdflow/internal/core"
	"opdflow/internal/errs"
	"opdflow/internal/poll"
)

// Orchestrator runs scenarios one phase at a time.
type Orchestrator struct {
	Suite    *config.Suite
	Sessions actor.Factory
	Clock    core.Clock
	Reporter core.Reporter
	Logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator on the real clock.
func NewOrchestrator(suite *config.Suite, sessions actor.Factory, reporter core.Reporter, logger *zap.Logger) *Orchestrator {
	if reporter == nil {
		reporter = core.NullReporter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Suite:    suite,
		Sessions: sessions,
		Clock:    core.RealClock{},
		Reporter: reporter,
		Logger:   logger,
	}
}

func (o *Orchestrator) clock() core.Clock {
	if o.Clock == nil {
		return core.RealClock{}
	}
	return o.Clock
}

func (o *Orchestrator) reporter() core.Reporter {
	if o.Reporter == nil {
		return core.NullReporter
	}
	return o.Reporter
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Orchestrator) suite() *config.Suite {
	if o.Suite == nil {
		return config.Default()
	}
	return o.Suite
}

// Run executes sc and returns its report. Phases run in order; a fatal
// failure leaves the remaining phases Pending.
func (o *Orchestrator) Run(ctx context.Context, sc Scenario) *Report {
	clock := o.clock()
	suite := o.suite()
	report := &Report{
		Scenario: sc.Name,
		RunID:    uuid.NewString(),
		Started:  clock.Now(),
		Phases:   make([]PhaseReport, len(sc.Phases)),
	}
	for i, p := range sc.Phases {
		report.Phases[i] = PhaseReport{Name: p.Name, State: Pending, BestEffort: p.bestEffort(suite)}
	}
	log := o.logger().With(zap.String("scenario", sc.Name), zap.String("run_id", report.RunID))

	if err := sc.Validate(); err != nil {
		report.Failures = append(report.Failures, Failure{
			Kind:    errs.Infrastructure,
			Fatal:   true,
			Message: err.Error(),
		})
		o.finish(report, log)
		return report
	}

	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = suite.Execution.ScenarioTimeout
	}
	ctx = core.ContextWithScenario(ctx, sc.Name)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Info("scenario started", zap.Int("phases", len(sc.Phases)))
	outputs := core.Outputs{}
	for i, phase := range sc.Phases {
		pr := &report.Phases[i]
		if !o.runPhase(ctx, sc.Name, report.RunID, phase, pr, outputs, report, log) {
			break
		}
	}
	o.finish(report, log)
	return report
}

func (o *Orchestrator) finish(report *Report, log *zap.Logger) {
	clock := o.clock()
	report.Elapsed = clock.Since(report.Started)
	report.Passed = true
	for _, f := range report.Failures {
		if f.Fatal {
			report.Passed = false
		}
	}
	ev := core.Event{
		Kind:      core.EventScenario,
		Scenario:  report.Scenario,
		Name:      report.Scenario,
		Timestamp: clock.Now(),
		Duration:  report.Elapsed,
		Success:   report.Passed,
		Fatal:     !report.Passed,
	}
	if err := report.Err(); err != nil {
		ev.Error = err.Error()
	}
	o.reporter().Report(ev)
	if report.Passed {
		log.Info("scenario passed", zap.Duration("elapsed", report.Elapsed))
	} else {
		log.Error("scenario failed", zap.Duration("elapsed", report.Elapsed), zap.String("error", ev.Error))
	}
}

// runPhase drives one phase to a terminal state and reports whether the
// scenario may continue.
func (o *Orchestrator) runPhase(ctx context.Context, scenario, runID string, phase Phase, pr *PhaseReport,
	outputs core.Outputs, report *Report, log *zap.Logger) bool {
	clock := o.clock()
	suite := o.suite()
	log = log.With(zap.String("phase", phase.Name))
	ctx = core.ContextWithPhase(ctx, phase.Name)

	pr.State = mustMove(pr.State, Running)
	start := clock.Now()
	log.Info("phase started", zap.Bool("best_effort", pr.BestEffort))

	rec := &recorder{next: o.reporter()}
	pc := &PhaseContext{
		Suite:    suite,
		Scenario: scenario,
		Phase:    phase.Name,
		RunID:    runID,
		Inputs:   outputs.Clone(),
		Poller: &poll.Poller{
			Clock:       clock,
			MinInterval: suite.Poller.MinInterval,
			Reporter:    rec,
			Logger:      log,
		},
		Logger:   log,
		sessions: make(map[string]actor.Session, len(phase.Actors)),
	}

	var (
		out   core.Outputs
		err   error
		diags []artifacts.Diagnostics
	)
	opened, err := o.open(ctx, phase.Actors)
	for _, s := range opened {
		pc.sessions[s.Name()] = s
	}
	if err == nil {
		out, err = call(ctx, phase.Run, pc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errs.Is(err, errs.Infrastructure) {
				err = errs.Wrap(errs.Infrastructure, scenario+"/"+phase.Name, "scenario deadline", errors.Join(ctxErr, err))
			}
			diags = diagnose(opened, scenario, phase.Name)
		}
	}
	for _, s := range opened {
		if cerr := s.Close(); cerr != nil {
			log.Warn("closing session failed", zap.String("actor", s.Name()), zap.Error(cerr))
			pr.Warnings = append(pr.Warnings, cerr.Error())
		}
	}
	pr.Elapsed = clock.Since(start)

	ev := core.Event{
		Kind:      core.EventPhase,
		Scenario:  scenario,
		Phase:     phase.Name,
		Name:      phase.Name,
		Timestamp: clock.Now(),
		Duration:  pr.Elapsed,
	}
	defer func() { o.reporter().Report(ev) }()

	if err == nil {
		pr.State = mustMove(pr.State, Succeeded)
		pr.Outputs = out.Clone()
		outputs.Merge(out)
		ev.Success = true
		log.Info("phase succeeded", zap.Duration("elapsed", pr.Elapsed), zap.Strings("outputs", out.Keys()))
		return true
	}

	fatal := errs.Fatal(err, pr.BestEffort)
	report.Failures = append(report.Failures, Failure{
		Phase:       phase.Name,
		Kind:        errs.KindOf(err),
		Fatal:       fatal,
		Message:     err.Error(),
		Probes:      rec.summaries(),
		Diagnostics: diags,
	})
	ev.Fatal = fatal
	ev.Error = err.Error()
	if fatal {
		pr.State = mustMove(pr.State, FailedFatal)
		log.Error("phase failed", zap.String("kind", string(errs.KindOf(err))), zap.Error(err))
		return false
	}
	pr.State = mustMove(pr.State, FailedBestEffort)
	// Partial outputs of a best-effort phase are still usable downstream.
	pr.Outputs = out.Clone()
	outputs.Merge(out)
	log.Warn("best-effort phase failed", zap.String("kind", string(errs.KindOf(err))), zap.Error(err))
	return true
}

// open starts every session of a phase. On failure the sessions already
// opened are returned so the caller can close them.
func (o *Orchestrator) open(ctx context.Context, specs []actor.Spec) ([]actor.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Infrastructure, "open sessions", "scenario deadline", err)
	}
	var opened []actor.Session
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return opened, errs.Infra("open "+spec.Name, err)
		}
		if o.Sessions == nil {
			return opened, errs.New(errs.Infrastructure, "open "+spec.Name, "no session factory configured")
		}
		s, err := o.Sessions.Open(core.ContextWithActor(ctx, spec.Name), spec)
		if err != nil {
			return opened, errs.Infra("open "+spec.Name, err)
		}
		opened = append(opened, s)
	}
	return opened, nil
}

// call runs fn, converting a panic into an Infrastructure error.
func call(ctx context.Context, fn RunFunc, pc *PhaseContext) (out core.Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			pc.Logger.Error("phase panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = nil
			err = errs.New(errs.Infrastructure, pc.op(), fmt.Sprintf("panic: %v", r))
		}
	}()
	return fn(ctx, pc)
}

func diagnose(sessions []actor.Session, scenario, phase string) []artifacts.Diagnostics {
	var out []artifacts.Diagnostics
	for _, s := range sessions {
		if d, ok := s.(actor.Diagnoser); ok {
			out = append(out, d.Diagnose(scenario, phase))
		}
	}
	return out
}

func mustMove(from, to State) State {
	next, err := from.next(to)
	if err != nil {
		panic(err)
	}
	return next
}

// recorder forwards probe events and keeps the latest per probe so a
// failed phase can show what it last observed.
type recorder struct {
	next core.Reporter

	mu    sync.Mutex
	order []string
	last  map[string]core.Event
}

func (r *recorder) Report(ev core.Event) {
	r.next.Report(ev)
	if ev.Kind != core.EventProbe {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = make(map[string]core.Event)
	}
	if _, seen := r.last[ev.Name]; !seen {
		r.order = append(r.order, ev.Name)
	}
	r.last[ev.Name] = ev
}

func (r *recorder) summaries() []ProbeSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProbeSummary, 0, len(r.order))
	for _, name := range r.order {
		ev := r.last[name]
		out = append(out, ProbeSummary{
			Name:      name,
			Attempts:  ev.Attempts,
			Elapsed:   ev.Duration,
			Succeeded: ev.Success,
			Last:      ev.Value,
			Error:     ev.Error,
		})
	}
	return out
}

var _ core.Reporter = (*recorder)(nil)
