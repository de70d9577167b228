package collector

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a run, on top of the
// scenarios' own verdicts.
type Thresholds struct {
	// ProbeConvergence bounds the convergence time of all probes together.
	ProbeConvergence *DurationThresholds `yaml:"probe_convergence"`
	// Probes bounds individual probes by name, such as "sp list title".
	Probes        map[string]*DurationThresholds `yaml:"probes,omitempty"`
	PhaseFailed   *RateThreshold                 `yaml:"phase_failed"`
	PollExhausted *RateThreshold                 `yaml:"poll_exhausted,omitempty"`
}

// DurationThresholds defines convergence time limits. Zero fields are
// not checked.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// RateThreshold is a maximum percentage such as "10%".
type RateThreshold struct {
	Rate string `yaml:"rate"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Check evaluates all thresholds against computed metrics. A probe
// threshold naming a probe that never polled is reported as failed.
func (t *Thresholds) Check(m *Metrics) *ThresholdResults {
	r := &ThresholdResults{Passed: true}
	if t == nil {
		return r
	}

	if t.ProbeConvergence != nil {
		r.durations("probe_convergence", t.ProbeConvergence, m.Convergence)
	}
	names := make([]string, 0, len(t.Probes))
	for name := range t.Probes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		pm, ok := m.Probes[name]
		if !ok {
			r.add(ThresholdResult{Name: "probes." + name, Threshold: "polled", Actual: "never polled"})
			continue
		}
		r.durations("probes."+name, t.Probes[name], pm.Convergence)
	}

	if t.PhaseFailed != nil && t.PhaseFailed.Rate != "" {
		r.rate("phase_failed.rate", t.PhaseFailed.Rate, m.PhaseFailureRate)
	}
	if t.PollExhausted != nil && t.PollExhausted.Rate != "" {
		r.rate("poll_exhausted.rate", t.PollExhausted.Rate, m.ExhaustedRate())
	}
	return r
}

func (r *ThresholdResults) add(res ThresholdResult) {
	if !res.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, res)
}

func (r *ThresholdResults) durations(prefix string, limits *DurationThresholds, actual DurationMetrics) {
	for _, c := range []struct {
		stat         string
		limit, value time.Duration
	}{
		{"avg", limits.Avg, actual.Avg},
		{"p50", limits.P50, actual.P50},
		{"p90", limits.P90, actual.P90},
		{"p95", limits.P95, actual.P95},
		{"p99", limits.P99, actual.P99},
	} {
		if c.limit == 0 {
			continue
		}
		r.add(ThresholdResult{
			Name:      prefix + "." + c.stat,
			Passed:    c.value <= c.limit,
			Threshold: FormatDuration(c.limit),
			Actual:    FormatDuration(c.value),
		})
	}
}

func (r *ThresholdResults) rate(name, limit string, actual float64) {
	allowed, err := parsePercentage(limit)
	if err != nil {
		r.add(ThresholdResult{Name: name, Threshold: limit, Actual: err.Error()})
		return
	}
	r.add(ThresholdResult{
		Name:      name,
		Passed:    actual <= allowed,
		Threshold: limit,
		Actual:    fmt.Sprintf("%.2f%%", actual),
	})
}

func parsePercentage(s string) (float64, error) {
	num, ok := strings.CutSuffix(strings.TrimSpace(s), "%")
	if !ok {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	return strconv.ParseFloat(num, 64)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	var out []ThresholdResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}
