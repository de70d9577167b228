package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"opdflow/internal/artifacts"
	"opdflow/internal/core"
	"opdflow/internal/errs"
)

// Report is the outcome of one scenario run.
type Report struct {
	Scenario string
	RunID    string
	Started  time.Time
	Elapsed  time.Duration
	Phases   []PhaseReport
	Failures []Failure
	// Passed is false when any failure was fatal.
	Passed bool
}

// PhaseReport is the outcome of one phase.
type PhaseReport struct {
	Name       string
	State      State
	BestEffort bool
	Elapsed    time.Duration
	Outputs    core.Outputs
	// Warnings are non-fatal problems such as sessions that failed to close.
	Warnings []string
}

// Failure describes why a phase did not succeed.
type Failure struct {
	Phase       string
	Kind        errs.Kind
	Fatal       bool
	Message     string
	Probes      []ProbeSummary
	Diagnostics []artifacts.Diagnostics
}

// ProbeSummary is the last poll of a probe inside the failed phase.
type ProbeSummary struct {
	Name      string
	Attempts  int
	Elapsed   time.Duration
	Succeeded bool
	Last      string
	Error     string
}

// Phase returns the report of the named phase, or nil.
func (r *Report) Phase(name string) *PhaseReport {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}

// Err returns the first fatal failure as an error, or nil when the
// scenario passed.
func (r *Report) Err() error {
	for _, f := range r.Failures {
		if f.Fatal {
			return &errs.Error{Kind: f.Kind, Op: r.Scenario + "/" + f.Phase, Message: f.Message}
		}
	}
	return nil
}

// WriteText renders reports for a terminal.
func WriteText(w io.Writer, reports []*Report) {
	for _, r := range reports {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s %s (%v, run %s)\n", status, r.Scenario, r.Elapsed.Round(time.Millisecond), shortID(r.RunID))
		for _, p := range r.Phases {
			fmt.Fprintf(w, "  %-20s %-18s %v\n", p.Name, p.State, p.Elapsed.Round(time.Millisecond))
			for _, warn := range p.Warnings {
				fmt.Fprintf(w, "    warning: %s\n", warn)
			}
		}
		for _, f := range r.Failures {
			severity := "fatal"
			if !f.Fatal {
				severity = "best-effort"
			}
			fmt.Fprintf(w, "  ! %s [%s, %s]: %s\n", f.Phase, f.Kind, severity, f.Message)
			for _, p := range f.Probes {
				fmt.Fprintf(w, "      probe %s: %d attempt(s) in %v, last=%s\n",
					p.Name, p.Attempts, p.Elapsed.Round(time.Millisecond), p.Last)
			}
			for _, d := range f.Diagnostics {
				fmt.Fprintf(w, "      %s at %s", d.Actor, d.URL)
				if d.Title != "" {
					fmt.Fprintf(w, " (%q)", d.Title)
				}
				fmt.Fprintln(w)
				if d.Screenshot != "" {
					fmt.Fprintf(w, "        screenshot: %s\n", d.Screenshot)
				}
				if d.DOM != "" {
					fmt.Fprintf(w, "        dom: %s\n", d.DOM)
				}
				if d.Error != "" {
					fmt.Fprintf(w, "        capture error: %s\n", d.Error)
				}
			}
		}
	}
}

// WriteJSON renders reports as an indented JSON array.
func WriteJSON(w io.Writer, reports []*Report) error {
	out := make([]JSONReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ToJSON())
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// JSONReport is the serialized form of Report.
type JSONReport struct {
	Scenario string        `json:"scenario"`
	RunID    string        `json:"runId"`
	Started  time.Time     `json:"started"`
	Elapsed  string        `json:"elapsed"`
	Passed   bool          `json:"passed"`
	Phases   []jsonPhase   `json:"phases"`
	Failures []jsonFailure `json:"failures,omitempty"`
}

type jsonPhase struct {
	Name       string            `json:"name"`
	State      State             `json:"state"`
	BestEffort bool              `json:"bestEffort,omitempty"`
	Elapsed    string            `json:"elapsed"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

type jsonFailure struct {
	Phase       string                  `json:"phase"`
	Kind        errs.Kind               `json:"kind"`
	Fatal       bool                    `json:"fatal"`
	Message     string                  `json:"message"`
	Probes      []jsonProbe             `json:"probes,omitempty"`
	Diagnostics []artifacts.Diagnostics `json:"diagnostics,omitempty"`
}

type jsonProbe struct {
	Name      string `json:"name"`
	Attempts  int    `json:"attempts"`
	Elapsed   string `json:"elapsed"`
	Succeeded bool   `json:"succeeded"`
	Last      string `json:"last"`
	Error     string `json:"error,omitempty"`
}

// ToJSON converts the report for encoding.
func (r *Report) ToJSON() JSONReport {
	out := JSONReport{
		Scenario: r.Scenario,
		RunID:    r.RunID,
		Started:  r.Started,
		Elapsed:  r.Elapsed.Round(time.Millisecond).String(),
		Passed:   r.Passed,
		Phases:   make([]jsonPhase, 0, len(r.Phases)),
	}
	for _, p := range r.Phases {
		out.Phases = append(out.Phases, jsonPhase{
			Name:       p.Name,
			State:      p.State,
			BestEffort: p.BestEffort,
			Elapsed:    p.Elapsed.Round(time.Millisecond).String(),
			Outputs:    p.Outputs,
			Warnings:   p.Warnings,
		})
	}
	for _, f := range r.Failures {
		jf := jsonFailure{
			Phase:       f.Phase,
			Kind:        f.Kind,
			Fatal:       f.Fatal,
			Message:     f.Message,
			Diagnostics: f.Diagnostics,
		}
		for _, p := range f.Probes {
			jf.Probes = append(jf.Probes, jsonProbe{
				Name:      p.Name,
				Attempts:  p.Attempts,
				Elapsed:   p.Elapsed.Round(time.Millisecond).String(),
				Succeeded: p.Succeeded,
				Last:      p.Last,
				Error:     p.Error,
			})
		}
		out.Failures = append(out.Failures, jf)
	}
	return out
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
