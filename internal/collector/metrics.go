package collector

import (
	"sort"
	"time"

	"opdflow/internal/core"
)

// Metrics contains aggregated run results.
type Metrics struct {
	RunDuration time.Duration

	Scenarios        int
	ScenariosPassed  int
	ScenariosFailed  int
	Phases           int
	PhasesSucceeded  int
	PhasesFatal      int
	PhasesBestEffort int
	// PhaseFailureRate is the percentage of phases that failed, fatal or not.
	PhaseFailureRate float64

	Polls     int
	Converged int
	Exhausted int
	Aborted   int
	// Convergence covers the elapsed time of converged polls only.
	Convergence DurationMetrics
	Probes      map[string]*ProbeMetrics
}

// DurationMetrics contains timing statistics.
type DurationMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// ProbeMetrics contains per-probe statistics.
type ProbeMetrics struct {
	Polls       int
	Converged   int
	Exhausted   int
	Aborted     int
	AvgAttempts float64
	MaxAttempts int
	Convergence DurationMetrics
}

// ComputeMetrics computes metrics from events. Pure function, no side effects.
func ComputeMetrics(events []core.Event, runDuration time.Duration) *Metrics {
	m := &Metrics{
		RunDuration: runDuration,
		Probes:      make(map[string]*ProbeMetrics),
	}

	var converged []time.Duration
	probeConverged := make(map[string][]time.Duration)
	probeAttempts := make(map[string]int)

	for _, e := range events {
		switch e.Kind {
		case core.EventScenario:
			m.Scenarios++
			if e.Success {
				m.ScenariosPassed++
			} else {
				m.ScenariosFailed++
			}
		case core.EventPhase:
			m.Phases++
			switch {
			case e.Success:
				m.PhasesSucceeded++
			case e.Fatal:
				m.PhasesFatal++
			default:
				m.PhasesBestEffort++
			}
		case core.EventProbe:
			m.Polls++
			pm, ok := m.Probes[e.Name]
			if !ok {
				pm = &ProbeMetrics{}
				m.Probes[e.Name] = pm
			}
			pm.Polls++
			probeAttempts[e.Name] += e.Attempts
			pm.MaxAttempts = max(pm.MaxAttempts, e.Attempts)
			switch {
			case e.Success:
				m.Converged++
				pm.Converged++
				converged = append(converged, e.Duration)
				probeConverged[e.Name] = append(probeConverged[e.Name], e.Duration)
			case e.Fatal:
				m.Aborted++
				pm.Aborted++
			default:
				m.Exhausted++
				pm.Exhausted++
			}
		}
	}

	if m.Phases > 0 {
		m.PhaseFailureRate = float64(m.PhasesFatal+m.PhasesBestEffort) / float64(m.Phases) * 100
	}

	m.Convergence = ComputeDurationMetrics(converged)
	for name, pm := range m.Probes {
		pm.AvgAttempts = float64(probeAttempts[name]) / float64(pm.Polls)
		pm.Convergence = ComputeDurationMetrics(probeConverged[name])
	}

	return m
}

// ComputePercentile calculates the percentile value from a sorted slice of durations.
// The percentile p should be between 0 and 1 (e.g., 0.95 for p95).
// The slice must be sorted in ascending order.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	// nearest rank
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// ComputeDurationMetrics calculates all duration statistics from a slice of durations.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}

// ProbeNames returns probe names in sorted order.
func (m *Metrics) ProbeNames() []string {
	names := make([]string, 0, len(m.Probes))
	for name := range m.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExhaustedRate is the percentage of polls that did not converge.
func (m *Metrics) ExhaustedRate() float64 {
	if m.Polls == 0 {
		return 0
	}
	return float64(m.Exhausted+m.Aborted) / float64(m.Polls) * 100
}
