// Package pages holds what the page objects share: paced navigation,
// action error mapping and condition-class waits.
package pages

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/actor"
	"opdflow/internal/config"
	"opdflow/internal/errs"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
	"opdflow/internal/ratelimit"
)

// Base is embedded by every page object.
type Base struct {
	Page   playwright.Page
	Pacers *ratelimit.HostPacers
	Waiter probe.Waiter
	Logger *zap.Logger
	// NavigationTimeout bounds Goto and reloads. Zero keeps the
	// context default.
	NavigationTimeout time.Duration
}

// New builds a Base over the session's page.
func New(s actor.Session, w probe.Waiter, suite *config.Suite, logger *zap.Logger) Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := Base{
		Page:   s.Page(),
		Pacers: s.Pacers(),
		Waiter: w,
		Logger: logger.With(zap.String("actor", s.Name())),
	}
	if suite != nil {
		b.NavigationTimeout = suite.Browser.NavigationTimeout
	}
	return b
}

// Goto navigates once the target host's pacer allows it.
func (b Base) Goto(ctx context.Context, url string) error {
	op := "goto " + url
	if err := b.Pacers.Wait(ctx, url); err != nil {
		return errs.Infra(op, err)
	}
	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
	if b.NavigationTimeout > 0 {
		opts.Timeout = playwright.Float(float64(b.NavigationTimeout.Milliseconds()))
	}
	if _, err := b.Page.Goto(url, opts); err != nil {
		return errs.Infra(op, err)
	}
	b.Log().Debug("navigated", zap.String("url", url))
	return nil
}

// Reload is a between-attempts side effect reloading the current page.
func (b Base) Reload() func(context.Context) error {
	return probe.Reload(b.Page, b.Pacers.For(b.Page.URL()), float64(b.NavigationTimeout.Milliseconds()))
}

// between returns Reload when reload is set.
func (b Base) between(reload bool) func(context.Context) error {
	if !reload {
		return nil
	}
	return b.Reload()
}

// AwaitVisible polls until loc is visible under class.
func (b Base) AwaitVisible(ctx context.Context, class config.ConditionClass, name string, loc playwright.Locator, reload bool) error {
	_, err := probe.Await(ctx, b.Waiter, class, probe.Visible(name, loc), poll.IsTrue, b.between(reload))
	return err
}

// AwaitEnabled polls until loc accepts input under class.
func (b Base) AwaitEnabled(ctx context.Context, class config.ConditionClass, name string, loc playwright.Locator) error {
	_, err := probe.Await(ctx, b.Waiter, class, probe.Enabled(name, loc), poll.IsTrue, nil)
	return err
}

// AwaitText polls the text of loc until it satisfies until.
func (b Base) AwaitText(ctx context.Context, class config.ConditionClass, name string, loc playwright.Locator, until func(string) bool, reload bool) (string, error) {
	return probe.Await(ctx, b.Waiter, class, probe.Text(name, loc), until, b.between(reload))
}

// ExpectText waits for loc to render and asserts its text is want.
func (b Base) ExpectText(ctx context.Context, name string, loc playwright.Locator, want string) error {
	got, err := b.AwaitText(ctx, config.PageReady, name, loc, poll.Present[string](), false)
	if err != nil {
		return err
	}
	if got != want {
		return errs.Assertf(name, "got %q, want %q", got, want)
	}
	return nil
}

// Visible reads visibility once without waiting. Absent reads as false.
func (b Base) Visible(ctx context.Context, name string, loc playwright.Locator) (bool, error) {
	obs, err := probe.Visible(name, loc).Read(ctx)
	if err != nil {
		return false, err
	}
	return obs.Ready && obs.Value, nil
}

// Log returns the page logger, never nil.
func (b Base) Log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// Do maps the error of a UI action. An action that fails means the
// page is not in the state the flow assumes, which no retry fixes.
func Do(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.Infra(op, err)
}

// Steps runs actions in order and stops at the first failure.
func Steps(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Fill returns a step filling loc.
func Fill(op string, loc playwright.Locator, value string) func() error {
	return func() error { return Do(op, loc.Fill(value)) }
}

// Click returns a step clicking loc.
func Click(op string, loc playwright.Locator) func() error {
	return func() error { return Do(op, loc.Click()) }
}

// Join appends path to a base URL.
func Join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// Textbox locates a textbox by its accessible name.
func Textbox(page playwright.Page, name string) playwright.Locator {
	return page.GetByRole(*playwright.AriaRoleTextbox, playwright.PageGetByRoleOptions{Name: name})
}

// Button locates a button by its accessible name.
func Button(page playwright.Page, name string) playwright.Locator {
	return page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: name})
}
