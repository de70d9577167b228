package core

import (
	"context"
	"testing"
	"time"
)

func TestRealClock_NowAndSince(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v is before %v", now, before)
	}

	time.Sleep(10 * time.Millisecond)
	if elapsed := clock.Since(now); elapsed < 10*time.Millisecond {
		t.Errorf("Since() = %v, want >= 10ms", elapsed)
	}
}

func TestFakeClock_MovesOnlyWhenTold(t *testing.T) {
	// Storage states are judged fresh for two hours; walk a clock past that.
	saved := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(saved)

	steps := []struct {
		move  func()
		since time.Duration
	}{
		{func() {}, 0},
		{func() { clock.Advance(90 * time.Minute) }, 90 * time.Minute},
		{func() { clock.Advance(31 * time.Minute) }, 121 * time.Minute},
		{func() { clock.Set(saved.Add(-time.Hour)) }, -time.Hour},
	}
	for i, step := range steps {
		step.move()
		if got := clock.Since(saved); got != step.since {
			t.Errorf("step %d: Since(saved) = %v, want %v", i, got, step.since)
		}
		if want := saved.Add(step.since); !clock.Now().Equal(want) {
			t.Errorf("step %d: Now() = %v, want %v", i, clock.Now(), want)
		}
	}
}

func TestFakeClock_SleepAdvancesAndRecords(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	if err := clock.Sleep(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := clock.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if clock.Since(start) != 5*time.Second {
		t.Errorf("after Sleep(5s), Since(start) = %v, expected 5s", clock.Since(start))
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 5*time.Second || sleeps[1] != 0 {
		t.Errorf("Sleeps() = %v, expected [5s 0s]", sleeps)
	}
}

func TestFakeClock_SleepCancelled(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := clock.Sleep(ctx, time.Second); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !clock.Now().Equal(start) {
		t.Errorf("cancelled Sleep must not advance the clock")
	}
}

func TestRealClock_SleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := RealClock{}.Sleep(ctx, time.Minute)
	if err != context.DeadlineExceeded {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Sleep did not return promptly on cancellation")
	}
}
