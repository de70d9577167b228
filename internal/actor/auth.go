package actor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/core"
	"opdflow/internal/errs"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

const (
	RealmOpex  = "opex"
	RealmMRKun = "mrkun"

	loginCheckInterval = 2 * time.Second
)

// Realm is an admin system whose login is saved as a storage state.
type Realm struct {
	Name     string
	State    string
	LoginURL string
	// Marker is visible once the operator has finished logging in.
	Marker string
	Proxy  string
}

// Realms returns the admin realms configured in suite.
func Realms(suite *config.Suite) map[string]Realm {
	return map[string]Realm{
		RealmOpex: {
			Name:     RealmOpex,
			State:    suite.Resolve(suite.Auth.OpexState),
			LoginURL: suite.Targets.Opex + "/internal/dashboard",
			Marker:   `label:has-text("ID")`,
		},
		RealmMRKun: {
			Name:     RealmMRKun,
			State:    suite.Resolve(suite.Auth.MRKunState),
			LoginURL: suite.Targets.MRKun + "/admin/restricted/mt/OnePointDetail/list.jsp",
			Marker:   "text=ワンポイント詳細",
			Proxy:    suite.Browser.Proxy,
		},
	}
}

// RealmNames lists realm names in sorted order.
func RealmNames(suite *config.Suite) []string {
	realms := Realms(suite)
	names := make([]string, 0, len(realms))
	for n := range realms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Freshness describes a saved storage state.
type Freshness struct {
	Path   string
	Exists bool
	Age    time.Duration
	Fresh  bool
}

func (f Freshness) String() string {
	switch {
	case !f.Exists:
		return fmt.Sprintf("%s: missing", f.Path)
	case f.Fresh:
		return fmt.Sprintf("%s: fresh (%s old)", f.Path, f.Age.Round(time.Minute))
	default:
		return fmt.Sprintf("%s: stale (%s old)", f.Path, f.Age.Round(time.Minute))
	}
}

// Fresh reports whether the storage state at path was written within maxAge.
func Fresh(path string, maxAge time.Duration, clock core.Clock) (Freshness, error) {
	if clock == nil {
		clock = core.RealClock{}
	}
	f := Freshness{Path: path}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("checking storage state: %w", err)
	}
	f.Exists = true
	f.Age = clock.Since(info.ModTime())
	f.Fresh = f.Age <= maxAge
	return f, nil
}

// RefreshStorageState opens a headed browser on the realm's login page,
// waits up to suite.Auth.LoginTimeout for the operator to finish logging
// in, then saves the session to the realm's storage state.
func RefreshStorageState(ctx context.Context, suite *config.Suite, realm Realm, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if realm.LoginURL == "" || realm.State == "" {
		return fmt.Errorf("realm %s is not configured", realm.Name)
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("starting playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(launchOptions(suite.Browser, false))
	if err != nil {
		return fmt.Errorf("launching chromium: %w", err)
	}
	defer browser.Close()

	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 720},
	}
	if _, err := os.Stat(realm.State); err == nil {
		opts.StorageStatePath = playwright.String(realm.State)
	}
	if realm.Proxy != "" {
		opts.Proxy = &playwright.Proxy{Server: realm.Proxy}
	}
	bctx, err := browser.NewContext(opts)
	if err != nil {
		return fmt.Errorf("creating browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("creating page: %w", err)
	}

	logger.Info("log in through the browser window",
		zap.String("realm", realm.Name),
		zap.String("url", realm.LoginURL),
		zap.Duration("timeout", suite.Auth.LoginTimeout))
	if _, err := page.Goto(realm.LoginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(millis(suite.Browser.NavigationTimeout)),
	}); err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}

	if err := waitForLogin(ctx, page.Locator(realm.Marker), suite.Auth.LoginTimeout, core.RealClock{}, logger); err != nil {
		return fmt.Errorf("waiting for %s login: %w", realm.Name, err)
	}

	if err := os.MkdirAll(filepath.Dir(realm.State), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	if _, err := bctx.StorageState(realm.State); err != nil {
		return fmt.Errorf("saving storage state: %w", err)
	}
	logger.Info("storage state saved", zap.String("realm", realm.Name), zap.String("path", realm.State))
	return nil
}

// waitForLogin polls marker visibility until timeout.
func waitForLogin(ctx context.Context, marker probe.Element, timeout time.Duration, clock core.Clock, logger *zap.Logger) error {
	attempts := max(1, int(timeout/loginCheckInterval))
	p := &poll.Poller{Clock: clock, Logger: logger}
	_, err := poll.Await(ctx, p, probe.Visible("login marker", marker), poll.Policy[bool]{
		Name:        "login",
		MaxAttempts: attempts,
		Interval:    loginCheckInterval,
		Timeout:     timeout,
		Until:       poll.IsTrue,
	})
	if errs.Is(err, errs.PolicyExhausted) {
		return fmt.Errorf("login not detected within %s", timeout)
	}
	return err
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
