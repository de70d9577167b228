package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// FormatText writes metrics in human-readable format.
func FormatText(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	if m.Scenarios == 0 && m.Polls == 0 {
		fmt.Fprintln(w, "No events collected")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "opdflow - Run Summary")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:   %v\n", m.RunDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Scenarios:  %d passed, %d failed\n", m.ScenariosPassed, m.ScenariosFailed)
	fmt.Fprintf(w, "Phases:     %d succeeded, %d fatal, %d best-effort failures (%.1f%% failed)\n",
		m.PhasesSucceeded, m.PhasesFatal, m.PhasesBestEffort, m.PhaseFailureRate)
	fmt.Fprintf(w, "Polls:      %d converged, %d exhausted, %d aborted\n", m.Converged, m.Exhausted, m.Aborted)

	if m.Converged > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Convergence Times:")
		fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(m.Convergence.Min))
		fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(m.Convergence.Avg))
		fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(m.Convergence.P50))
		fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(m.Convergence.P95))
		fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(m.Convergence.Max))
	}

	if len(m.Probes) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "By Probe:")
		for _, name := range m.ProbeNames() {
			pm := m.Probes[name]
			fmt.Fprintf(w, "  %-28s %d/%d converged  attempts avg=%.1f max=%d  p95=%s\n",
				name, pm.Converged, pm.Polls, pm.AvgAttempts, pm.MaxAttempts,
				FormatDuration(pm.Convergence.P95))
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s <= %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes metrics in JSON format.
func FormatJSON(w io.Writer, m *Metrics, thresholds *ThresholdResults) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ToJSON(m, thresholds))
}

// JSONMetrics is the serialized form of Metrics.
type JSONMetrics struct {
	Duration         string                      `json:"duration"`
	Scenarios        int                         `json:"scenarios"`
	ScenariosPassed  int                         `json:"scenariosPassed"`
	ScenariosFailed  int                         `json:"scenariosFailed"`
	Phases           int                         `json:"phases"`
	PhasesFatal      int                         `json:"phasesFatal"`
	PhasesBestEffort int                         `json:"phasesBestEffort"`
	PhaseFailureRate float64                     `json:"phaseFailureRate"`
	Polls            int                         `json:"polls"`
	Converged        int                         `json:"converged"`
	Exhausted        int                         `json:"exhausted"`
	Aborted          int                         `json:"aborted"`
	Convergence      jsonDurationMetrics         `json:"convergence"`
	Probes           map[string]jsonProbeMetrics `json:"probes"`
	Thresholds       *ThresholdResults           `json:"thresholds,omitempty"`
}

// ToJSON converts metrics for embedding in a larger JSON document.
func ToJSON(m *Metrics, thresholds *ThresholdResults) JSONMetrics {
	out := JSONMetrics{
		Duration:         m.RunDuration.Round(time.Millisecond).String(),
		Scenarios:        m.Scenarios,
		ScenariosPassed:  m.ScenariosPassed,
		ScenariosFailed:  m.ScenariosFailed,
		Phases:           m.Phases,
		PhasesFatal:      m.PhasesFatal,
		PhasesBestEffort: m.PhasesBestEffort,
		PhaseFailureRate: m.PhaseFailureRate,
		Polls:            m.Polls,
		Converged:        m.Converged,
		Exhausted:        m.Exhausted,
		Aborted:          m.Aborted,
		Convergence:      toJSONDurationMetrics(m.Convergence),
		Probes:           make(map[string]jsonProbeMetrics, len(m.Probes)),
		Thresholds:       thresholds,
	}
	for name, pm := range m.Probes {
		out.Probes[name] = jsonProbeMetrics{
			Polls:       pm.Polls,
			Converged:   pm.Converged,
			Exhausted:   pm.Exhausted,
			Aborted:     pm.Aborted,
			AvgAttempts: pm.AvgAttempts,
			MaxAttempts: pm.MaxAttempts,
			Convergence: toJSONDurationMetrics(pm.Convergence),
		}
	}
	return out
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonProbeMetrics struct {
	Polls       int                 `json:"polls"`
	Converged   int                 `json:"converged"`
	Exhausted   int                 `json:"exhausted"`
	Aborted     int                 `json:"aborted"`
	AvgAttempts float64             `json:"avgAttempts"`
	MaxAttempts int                 `json:"maxAttempts"`
	Convergence jsonDurationMetrics `json:"convergence"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}
