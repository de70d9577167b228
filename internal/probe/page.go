package probe

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"opdflow/internal/errs"
	"opdflow/internal/poll"
	"opdflow/internal/ratelimit"
)

// Document is the subset of playwright.Page read by page-level probes.
type Document interface {
	URL() string
	Title() (string, error)
}

// Reloader reloads the current page.
type Reloader interface {
	Reload(options ...playwright.PageReloadOptions) (playwright.Response, error)
}

// Evaluator runs JavaScript in the page.
type Evaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

// Title reads the document title.
func Title(name string, doc Document) poll.Probe[string] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[string], error) {
		if err := ctx.Err(); err != nil {
			return poll.NotReady[string](), errs.Infra(name, err)
		}
		t, err := doc.Title()
		if err != nil {
			return poll.NotReady[string](), Classify(name, err)
		}
		return poll.Ready(t), nil
	})
}

// URL reads the current page URL.
func URL(name string, doc Document) poll.Probe[string] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[string], error) {
		if err := ctx.Err(); err != nil {
			return poll.NotReady[string](), errs.Infra(name, err)
		}
		return poll.Ready(doc.URL()), nil
	})
}

// Truthy evaluates expr and reads whether the result is JavaScript-truthy.
// A thrown exception while the page is still rendering reads as not ready.
func Truthy(name string, ev Evaluator, expr string) poll.Probe[bool] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[bool], error) {
		if err := ctx.Err(); err != nil {
			return poll.NotReady[bool](), errs.Infra(name, err)
		}
		v, err := ev.Evaluate(expr)
		if err != nil {
			err = Classify(name, err)
			if errs.Is(err, errs.NotReady) {
				return poll.NotReady[bool](), nil
			}
			return poll.NotReady[bool](), err
		}
		return poll.Ready(truthy(v)), nil
	})
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// Reload returns a between-attempts side effect that reloads the page
// once pacer allows. A reload timeout is tolerated as not ready.
func Reload(page Reloader, pacer *ratelimit.Pacer, timeout float64) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pacer.Wait(ctx); err != nil {
			return errs.Infra("reload", err)
		}
		opts := playwright.PageReloadOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
		if timeout > 0 {
			opts.Timeout = playwright.Float(timeout)
		}
		if _, err := page.Reload(opts); err != nil {
			return Classify("reload", fmt.Errorf("reloading page: %w", err))
		}
		return nil
	}
}
