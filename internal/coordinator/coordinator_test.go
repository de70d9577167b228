package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"opdflow/internal/collector"
	"opdflow/internal/core"
	"opdflow/internal/errs"
	"opdflow/internal/scenario"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockRunner tracks concurrency and can be told to panic or block.
type mockRunner struct {
	delay     time.Duration
	panicOn   string
	running   atomic.Int32
	maxActive atomic.Int32
	runs      atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context, sc scenario.Scenario) *scenario.Report {
	m.runs.Add(1)
	n := m.running.Add(1)
	defer m.running.Add(-1)
	for {
		cur := m.maxActive.Load()
		if n <= cur || m.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if sc.Name == m.panicOn {
		panic("runner exploded")
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return &scenario.Report{Scenario: sc.Name}
		}
	}
	return &scenario.Report{Scenario: sc.Name, Passed: true}
}

func scenarios(n int) []scenario.Scenario {
	out := make([]scenario.Scenario, n)
	for i := range out {
		out[i] = scenario.Scenario{
			Name:   fmt.Sprintf("s%d", i),
			Phases: []scenario.Phase{{Name: "only"}},
		}
	}
	return out
}

func TestCoordinator_ReportsInInputOrder(t *testing.T) {
	runner := &mockRunner{delay: time.Millisecond}
	coord := NewCoordinator(runner, 3, nil, nil)

	reports := coord.Run(context.Background(), scenarios(7))

	if len(reports) != 7 {
		t.Fatalf("expected 7 reports, got %d", len(reports))
	}
	for i, r := range reports {
		if r.Scenario != fmt.Sprintf("s%d", i) {
			t.Errorf("report %d is for %s", i, r.Scenario)
		}
		if !r.Passed {
			t.Errorf("report %d failed", i)
		}
	}
	if coord.Finished() != 7 {
		t.Errorf("expected 7 finished, got %d", coord.Finished())
	}
	if coord.Active() != 0 {
		t.Errorf("expected no active scenarios, got %d", coord.Active())
	}
}

func TestCoordinator_RespectsWorkerLimit(t *testing.T) {
	runner := &mockRunner{delay: 20 * time.Millisecond}
	coord := NewCoordinator(runner, 2, nil, nil)

	coord.Run(context.Background(), scenarios(6))

	if got := runner.maxActive.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent scenarios, saw %d", got)
	}
	if runner.runs.Load() != 6 {
		t.Errorf("expected 6 runs, got %d", runner.runs.Load())
	}
}

func TestCoordinator_ScenariosRunConcurrently(t *testing.T) {
	runner := &mockRunner{delay: 50 * time.Millisecond}
	coord := NewCoordinator(runner, 5, nil, nil)

	start := time.Now()
	coord.Run(context.Background(), scenarios(5))
	elapsed := time.Since(start)

	// Sequential execution would take 250ms.
	if elapsed > 200*time.Millisecond {
		t.Errorf("scenarios don't appear to run concurrently, took %v", elapsed)
	}
}

func TestCoordinator_RecoversFromPanic(t *testing.T) {
	c := collector.NewCollector()
	runner := &mockRunner{panicOn: "s1"}
	coord := NewCoordinator(runner, 2, c, nil)

	reports := coord.Run(context.Background(), scenarios(3))
	c.Close()

	if !reports[0].Passed || !reports[2].Passed {
		t.Error("a panic in one scenario must not affect the others")
	}
	r := reports[1]
	if r.Passed {
		t.Fatal("panicking scenario should fail")
	}
	if len(r.Failures) != 1 || r.Failures[0].Kind != errs.Infrastructure {
		t.Fatalf("expected one infrastructure failure, got %+v", r.Failures)
	}
	if len(r.Phases) != 1 || r.Phases[0].State != scenario.Pending {
		t.Errorf("expected phases left pending, got %+v", r.Phases)
	}

	var panics int
	for _, e := range c.Events() {
		if e.Kind == core.EventScenario && e.Fatal {
			panics++
		}
	}
	if panics != 1 {
		t.Errorf("expected 1 panic event, got %d", panics)
	}
}

func TestCoordinator_CancelledContextSkipsPendingScenarios(t *testing.T) {
	runner := &mockRunner{delay: time.Second}
	coord := NewCoordinator(runner, 1, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	reports := coord.Run(ctx, scenarios(4))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation not honoured, took %v", elapsed)
	}

	skipped := 0
	for _, r := range reports {
		if r == nil {
			t.Fatal("every scenario must have a report")
		}
		if r.Passed {
			t.Errorf("%s passed after cancellation", r.Scenario)
		}
		if len(r.Failures) == 1 && r.Failures[0].Kind == errs.Infrastructure {
			skipped++
		}
	}
	if skipped != 3 {
		t.Errorf("expected 3 scenarios not started, got %d", skipped)
	}
}

func TestNewCoordinator_ClampsWorkers(t *testing.T) {
	coord := NewCoordinator(&mockRunner{}, 0, nil, nil)
	if coord.workers != 1 {
		t.Errorf("expected 1 worker, got %d", coord.workers)
	}
}
