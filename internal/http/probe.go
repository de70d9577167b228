package http

import (
	"context"

	"github.com/tidwall/gjson"

	"opdflow/internal/core"
	"opdflow/internal/errs"
	"opdflow/internal/poll"
	"opdflow/internal/template"
)

// JSON probes the value at a JSONPath of step's response body. A pending
// status or a path that does not exist yet reads as not ready.
func JSON(name string, step *Step, vars core.Variables, path string) poll.Probe[gjson.Result] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[gjson.Result], error) {
		result, err := step.Execute(ctx, vars)
		if err != nil {
			if errs.Is(err, errs.NotReady) {
				return poll.NotReady[gjson.Result](), nil
			}
			return poll.NotReady[gjson.Result](), err
		}
		value, ok := template.ExtractPath(result.Body, path)
		if !ok {
			return poll.NotReady[gjson.Result](), nil
		}
		return poll.Ready(value), nil
	})
}

// JSONInt probes an integer field.
func JSONInt(name string, step *Step, vars core.Variables, path string) poll.Probe[int] {
	return mapped(JSON(name, step, vars, path), func(r gjson.Result) (int, bool) {
		if r.Type != gjson.Number {
			return 0, false
		}
		return int(r.Int()), true
	})
}

// JSONString probes a string field.
func JSONString(name string, step *Step, vars core.Variables, path string) poll.Probe[string] {
	return mapped(JSON(name, step, vars, path), func(r gjson.Result) (string, bool) {
		return r.String(), true
	})
}

func mapped[T any](p poll.Probe[gjson.Result], conv func(gjson.Result) (T, bool)) poll.Probe[T] {
	return poll.Named(p.Name(), func(ctx context.Context) (poll.Observation[T], error) {
		obs, err := p.Read(ctx)
		if err != nil || !obs.Ready {
			return poll.NotReady[T](), err
		}
		v, ok := conv(obs.Value)
		if !ok {
			return poll.NotReady[T](), nil
		}
		return poll.Ready(v), nil
	})
}
