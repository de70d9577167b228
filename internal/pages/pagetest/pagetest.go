// Package pagetest runs page objects against fixture HTML in a real
// browser. Tests skip when Playwright is not installed.
package pagetest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"opdflow/internal/config"
	"opdflow/internal/core"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

// Interval is the poll interval of every condition class in tests.
const Interval = 50 * time.Millisecond

// Page launches headless Chromium and returns a fresh page.
func Page(t testing.TB) playwright.Page {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(true)})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Chromium not available:", err)
	}
	t.Cleanup(func() {
		_ = browser.Close()
		_ = pw.Stop()
	})
	page, err := browser.NewPage()
	require.NoError(t, err)
	page.SetDefaultTimeout(5000)
	page.OnDialog(func(d playwright.Dialog) { _ = d.Accept() })
	return page
}

// Conditions are the default classes with fast intervals and the
// default attempt counts.
func Conditions() config.Conditions {
	conds := config.Conditions{}
	for class, c := range config.DefaultConditions() {
		c.Interval = Interval
		c.Timeout = 0
		conds[class] = c
	}
	return conds
}

// Base wraps page with a fast poller.
func Base(page playwright.Page) pages.Base {
	poller := poll.NewPoller(core.RealClock{}, nil, nil)
	poller.MinInterval = 10 * time.Millisecond
	return pages.Base{
		Page:              page,
		Waiter:            probe.Waiter{Poller: poller, Conditions: Conditions()},
		NavigationTimeout: 5 * time.Second,
	}
}

// Serve starts a fixture server for the test. Favicon requests never
// reach h.
func Serve(t testing.TB, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/favicon.ico" {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// HTML writes a minimal UTF-8 document.
func HTML(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body>%s</body></html>", title, body)
}
