// Package probe adapts Playwright reads into poll probes. Absent or
// not-yet-rendered elements read as not ready; only failures of the
// browser itself surface as errors.
package probe

import (
	"context"
	"errors"
	"strings"

	"github.com/playwright-community/playwright-go"

	"opdflow/internal/errs"
	"opdflow/internal/poll"
)

// readTimeout bounds a single read in milliseconds. Waiting is the
// poller's job, so reads fail fast.
const readTimeout = 2000.0

// Element is the subset of playwright.Locator the probes read.
type Element interface {
	Count() (int, error)
	InnerText(options ...playwright.LocatorInnerTextOptions) (string, error)
	IsVisible(options ...playwright.LocatorIsVisibleOptions) (bool, error)
	IsEnabled(options ...playwright.LocatorIsEnabledOptions) (bool, error)
	GetAttribute(name string, options ...playwright.LocatorGetAttributeOptions) (string, error)
	InputValue(options ...playwright.LocatorInputValueOptions) (string, error)
}

// Classify maps a Playwright error onto the failure taxonomy. Timeouts
// mean the element did not show up in time and are NotReady; anything
// else, including a closed page, is Infrastructure.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *errs.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return errs.Wrap(errs.NotReady, op, "timed out", err)
	}
	return errs.Infra(op, err)
}

// present reports whether el matches at least one node. A missing node
// is not an error.
func present(ctx context.Context, op string, el Element) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errs.Infra(op, err)
	}
	n, err := el.Count()
	if err != nil {
		return false, Classify(op, err)
	}
	return n > 0, nil
}

// read runs fn against a present element and folds NotReady errors into
// a not-ready observation.
func read[T any](ctx context.Context, op string, el Element, fn func() (T, error)) (poll.Observation[T], error) {
	ok, err := present(ctx, op, el)
	if err != nil || !ok {
		return poll.NotReady[T](), err
	}
	v, err := fn()
	if err != nil {
		err = Classify(op, err)
		if errs.Is(err, errs.NotReady) {
			return poll.NotReady[T](), nil
		}
		return poll.NotReady[T](), err
	}
	return poll.Ready(v), nil
}

// Text reads the trimmed inner text of the first match.
func Text(name string, el Element) poll.Probe[string] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[string], error) {
		return read(ctx, name, el, func() (string, error) {
			s, err := el.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(readTimeout)})
			return strings.TrimSpace(s), err
		})
	})
}

// Visible reads whether the element is visible. An absent element reads
// as a ready false so that "gone" can be awaited too.
func Visible(name string, el Element) poll.Probe[bool] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[bool], error) {
		ok, err := present(ctx, name, el)
		if err != nil {
			return poll.NotReady[bool](), err
		}
		if !ok {
			return poll.Ready(false), nil
		}
		v, err := el.IsVisible()
		if err != nil {
			return poll.NotReady[bool](), Classify(name, err)
		}
		return poll.Ready(v), nil
	})
}

// Enabled reads whether a form control accepts input.
func Enabled(name string, el Element) poll.Probe[bool] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[bool], error) {
		return read(ctx, name, el, func() (bool, error) {
			return el.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: playwright.Float(readTimeout)})
		})
	})
}

// Attribute reads an attribute of the first match.
func Attribute(name string, el Element, attr string) poll.Probe[string] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[string], error) {
		return read(ctx, name, el, func() (string, error) {
			return el.GetAttribute(attr, playwright.LocatorGetAttributeOptions{Timeout: playwright.Float(readTimeout)})
		})
	})
}

// Value reads the current value of an input.
func Value(name string, el Element) poll.Probe[string] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[string], error) {
		return read(ctx, name, el, func() (string, error) {
			s, err := el.InputValue(playwright.LocatorInputValueOptions{Timeout: playwright.Float(readTimeout)})
			return strings.TrimSpace(s), err
		})
	})
}

// Count reads how many nodes match. Zero is a ready value.
func Count(name string, el Element) poll.Probe[int] {
	return poll.Named(name, func(ctx context.Context) (poll.Observation[int], error) {
		if err := ctx.Err(); err != nil {
			return poll.NotReady[int](), errs.Infra(name, err)
		}
		n, err := el.Count()
		if err != nil {
			err = Classify(name, err)
			if errs.Is(err, errs.NotReady) {
				return poll.NotReady[int](), nil
			}
			return poll.NotReady[int](), err
		}
		return poll.Ready(n), nil
	})
}

// Number reads the element text as an integer. Text that does not
// parse yet, such as a placeholder dash, reads as not ready.
func Number(name string, el Element) poll.Probe[int] {
	text := Text(name, el)
	return poll.Named(name, func(ctx context.Context) (poll.Observation[int], error) {
		obs, err := text.Read(ctx)
		if err != nil || !obs.Ready {
			return poll.NotReady[int](), err
		}
		n, ok := ParseNumber(obs.Value)
		if !ok {
			return poll.NotReady[int](), nil
		}
		return poll.Ready(n), nil
	})
}
