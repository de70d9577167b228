package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"opdflow/internal/core"
	"opdflow/internal/ratelimit"
)

// Workflow runs API requests in order, feeding extracted values of one
// request into the templates of the next. It seeds fixtures over an
// API when a browser is not needed.
type Workflow struct {
	Requests []Request
	Client   *http.Client
	Debug    *DebugLogger
	Pacers   *ratelimit.HostPacers

	steps     []*Step
	stepsOnce sync.Once
}

// Run executes every request and returns the extracted outputs merged
// over vars. It stops at the first failing request.
func (w *Workflow) Run(ctx context.Context, vars core.Outputs) (core.Outputs, error) {
	w.stepsOnce.Do(func() {
		w.steps = make([]*Step, len(w.Requests))
		for i, req := range w.Requests {
			w.steps[i] = NewStep(req, w.Client, w.Debug, w.Pacers)
		}
	})

	out := vars.Clone()
	if out == nil {
		out = core.Outputs{}
	}
	for _, step := range w.steps {
		result, err := step.Execute(ctx, out)
		if err != nil {
			return out, fmt.Errorf("step %s: %w", step.Name(), err)
		}
		out.Merge(result.Extract)
	}
	return out, nil
}
