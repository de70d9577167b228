// Package actor opens the browser sessions scenarios act through. Each
// actor owns one browser context and one page.
package actor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/artifacts"
	"opdflow/internal/config"
	"opdflow/internal/errs"
	"opdflow/internal/ratelimit"
)

// Spec describes a session a phase needs.
type Spec struct {
	Name   string
	Device string
	// StorageState is a saved login; empty starts logged out.
	StorageState string
	// Proxy overrides browser.proxy for this actor.
	Proxy string
}

// Session is an open browser session.
type Session interface {
	Name() string
	Page() playwright.Page
	// Pacers pace navigations per target host. May be nil.
	Pacers() *ratelimit.HostPacers
	Close() error
}

// Diagnoser is implemented by sessions that can capture failure artifacts.
type Diagnoser interface {
	Diagnose(scenario, phase string) artifacts.Diagnostics
}

// Factory opens sessions.
type Factory interface {
	Open(ctx context.Context, spec Spec) (Session, error)
}

// Actor is a Session backed by Playwright.
type Actor struct {
	name     string
	context  playwright.BrowserContext
	page     playwright.Page
	pacers   *ratelimit.HostPacers
	capturer *artifacts.Capturer
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (a *Actor) Name() string          { return a.name }
func (a *Actor) Page() playwright.Page { return a.page }

func (a *Actor) Pacers() *ratelimit.HostPacers { return a.pacers }

// Diagnose captures the page as it is now.
func (a *Actor) Diagnose(scenario, phase string) artifacts.Diagnostics {
	return a.capturer.Capture(a.page, scenario, phase, a.name)
}

// Close closes the browser context. Safe to call more than once.
func (a *Actor) Close() error {
	a.closeOnce.Do(func() {
		if err := a.context.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			a.closeErr = fmt.Errorf("closing %s: %w", a.name, err)
		}
	})
	return a.closeErr
}

func (a *Actor) acceptDialog(d playwright.Dialog) {
	a.logger.Debug("accepting dialog",
		zap.String("type", d.Type()),
		zap.String("message", d.Message()))
	if err := d.Accept(); err != nil {
		a.logger.Warn("dialog accept failed", zap.Error(err))
	}
}

// Launcher owns Playwright and one Chromium instance and opens actors in it.
type Launcher struct {
	suite    *config.Suite
	pw       *playwright.Playwright
	browser  playwright.Browser
	capturer *artifacts.Capturer
	pacers   *ratelimit.HostPacers
	logger   *zap.Logger
}

// Launch starts Playwright and Chromium as configured.
func Launch(suite *config.Suite, logger *zap.Logger) (*Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(launchOptions(suite.Browser, suite.Browser.Headless))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	return &Launcher{
		suite:   suite,
		pw:      pw,
		browser: browser,
		capturer: &artifacts.Capturer{
			Dir:        suite.Resolve(suite.Artifacts.Dir),
			Screenshot: suite.Artifacts.Screenshot,
			DOM:        suite.Artifacts.DOM,
		},
		pacers: ratelimit.NewHostPacers(suite.Browser.NavigationsPerSecond, suite.Browser.NavigationBurst),
		logger: logger,
	}, nil
}

// Open creates a fresh browser context and page for spec.
func (l *Launcher) Open(ctx context.Context, spec Spec) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Infra("open "+spec.Name, err)
	}
	opts, err := contextOptions(l.suite, spec)
	if err != nil {
		return nil, errs.Infra("open "+spec.Name, err)
	}
	bctx, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, errs.Infra("open "+spec.Name, fmt.Errorf("creating browser context: %w", err))
	}
	bctx.SetDefaultTimeout(millis(l.suite.Browser.ActionTimeout))
	bctx.SetDefaultNavigationTimeout(millis(l.suite.Browser.NavigationTimeout))

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Infra("open "+spec.Name, fmt.Errorf("creating page: %w", err))
	}

	a := &Actor{
		name:     spec.Name,
		context:  bctx,
		page:     page,
		pacers:   l.pacers,
		capturer: l.capturer,
		logger:   l.logger.With(zap.String("actor", spec.Name)),
	}
	if l.suite.Browser.AcceptDialogs {
		page.OnDialog(a.acceptDialog)
	}
	a.logger.Debug("session opened", zap.String("device", spec.Device))
	return a, nil
}

// Close shuts the browser and Playwright down.
func (l *Launcher) Close() error {
	var errList []error
	if err := l.browser.Close(); err != nil {
		errList = append(errList, fmt.Errorf("closing browser: %w", err))
	}
	if err := l.pw.Stop(); err != nil {
		errList = append(errList, fmt.Errorf("stopping playwright: %w", err))
	}
	return errors.Join(errList...)
}

func launchOptions(b config.BrowserConfig, headless bool) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	}
	if b.SlowMo > 0 {
		opts.SlowMo = playwright.Float(millis(b.SlowMo))
	}
	return opts
}

func contextOptions(suite *config.Suite, spec Spec) (playwright.BrowserNewContextOptions, error) {
	dev, err := LookupDevice(spec.Device)
	if err != nil {
		return playwright.BrowserNewContextOptions{}, err
	}
	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: dev.Width, Height: dev.Height},
		IsMobile: playwright.Bool(dev.Mobile),
		HasTouch: playwright.Bool(dev.Touch),
	}
	if dev.UserAgent != "" {
		opts.UserAgent = playwright.String(dev.UserAgent)
	}
	if dev.Scale > 0 {
		opts.DeviceScaleFactor = playwright.Float(dev.Scale)
	}
	if spec.StorageState != "" {
		path := suite.Resolve(spec.StorageState)
		if _, err := os.Stat(path); err != nil {
			return opts, fmt.Errorf("storage state %s unavailable (run `opdflow auth refresh`): %w", path, err)
		}
		opts.StorageStatePath = playwright.String(path)
	}
	proxy := spec.Proxy
	if proxy == "" {
		proxy = suite.Browser.Proxy
	}
	if proxy != "" {
		opts.Proxy = &playwright.Proxy{Server: proxy}
	}
	return opts, nil
}
