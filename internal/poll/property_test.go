package poll

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"

	"opdflow/internal/core"
)

func TestProperty_AttemptsNeverExceedMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxAttempts := rapid.IntRange(1, 50).Draw(t, "maxAttempts")
		readyFrom := rapid.IntRange(0, 60).Draw(t, "readyFrom")
		interval := time.Duration(rapid.IntRange(0, 5000).Draw(t, "intervalMs")) * time.Millisecond

		clock := core.NewFakeClock(epoch)
		probe := &counterProbe{readyFrom: readyFrom}
		res := Poll(context.Background(), NewPoller(clock, nil, nil), probe, Policy[int]{
			MaxAttempts: maxAttempts,
			Interval:    interval,
			Until:       Present[int](),
		})

		if probe.calls > maxAttempts {
			t.Fatalf("probe called %d times, max %d", probe.calls, maxAttempts)
		}
		if res.Attempts != probe.calls {
			t.Fatalf("attempts %d != calls %d", res.Attempts, probe.calls)
		}
		wantSuccess := readyFrom > 0 && readyFrom <= maxAttempts
		if res.Succeeded != wantSuccess {
			t.Fatalf("succeeded=%v, want %v", res.Succeeded, wantSuccess)
		}
		if res.Succeeded && res.Attempts != readyFrom {
			t.Fatalf("succeeded on attempt %d, want %d", res.Attempts, readyFrom)
		}
		if !res.Succeeded && res.Final.Ready {
			t.Fatalf("failure must carry the last not-ready observation")
		}
	})
}

func TestProperty_ReturnsWithinTimeoutPlusInterval(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		timeout := time.Duration(rapid.IntRange(1, 60_000).Draw(t, "timeoutMs")) * time.Millisecond
		interval := time.Duration(rapid.IntRange(0, 10_000).Draw(t, "intervalMs")) * time.Millisecond

		clock := core.NewFakeClock(epoch)
		res := Poll(context.Background(), NewPoller(clock, nil, nil), &counterProbe{}, Policy[int]{
			MaxAttempts: 1_000_000,
			Interval:    interval,
			Timeout:     timeout,
			Until:       Present[int](),
		})

		bound := timeout + max(interval, DefaultMinInterval)
		if res.Elapsed > bound {
			t.Fatalf("elapsed %v exceeds %v", res.Elapsed, bound)
		}
		if res.Succeeded {
			t.Fatalf("never-ready probe cannot succeed")
		}
	})
}

func TestProperty_DeterministicProbeAgrees(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxAttempts := rapid.IntRange(1, 20).Draw(t, "maxAttempts")
		readyFrom := rapid.IntRange(0, 25).Draw(t, "readyFrom")
		threshold := rapid.IntRange(0, 25).Draw(t, "threshold")
		policy := Policy[int]{MaxAttempts: maxAttempts, Until: AtLeast(threshold)}

		first := Poll(context.Background(), NewPoller(core.NewFakeClock(epoch), nil, nil), &counterProbe{readyFrom: readyFrom}, policy)
		second := Poll(context.Background(), NewPoller(core.NewFakeClock(epoch), nil, nil), &counterProbe{readyFrom: readyFrom}, policy)

		if first.Succeeded != second.Succeeded || first.Attempts != second.Attempts {
			t.Fatalf("polls disagree: %+v vs %+v", first, second)
		}
	})
}
