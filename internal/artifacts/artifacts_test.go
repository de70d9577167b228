package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opdflow/internal/core"
)

type fakePage struct {
	url, title, html string
	shotErr          error
	shots            []string
}

func (p *fakePage) URL() string              { return p.url }
func (p *fakePage) Title() (string, error)   { return p.title, nil }
func (p *fakePage) Content() (string, error) { return p.html, nil }

func (p *fakePage) Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error) {
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	path := *options[0].Path
	p.shots = append(p.shots, path)
	return []byte("png"), os.WriteFile(path, []byte("png"), 0o644)
}

func TestCapture_WritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	c := &Capturer{
		Dir: dir, Screenshot: true, DOM: true,
		Clock: core.NewFakeClock(time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)),
	}
	page := &fakePage{url: "https://sp.example/home", title: "OPD一覧", html: "<html><body>自動テスト</body></html>"}

	d := c.Capture(page, "target-display-sp", "verify SP", "doctor-sp")

	assert.Equal(t, "doctor-sp", d.Actor)
	assert.Equal(t, "https://sp.example/home", d.URL)
	assert.Equal(t, "OPD一覧", d.Title)
	assert.Empty(t, d.Error)
	assert.Equal(t, filepath.Join(dir, "target-display-sp", "verify_sp-doctor-sp-20260105-093000.png"), d.Screenshot)
	require.FileExists(t, d.DOM)

	html, err := os.ReadFile(d.DOM)
	require.NoError(t, err)
	assert.Contains(t, string(html), "自動テスト")
	assert.Contains(t, d.Excerpt, "自動テスト")
}

func TestCapture_ScreenshotFailureIsRecorded(t *testing.T) {
	c := &Capturer{Dir: t.TempDir(), Screenshot: true}
	page := &fakePage{url: "u", shotErr: errors.New("target closed")}

	d := c.Capture(page, "s", "p", "a")

	assert.Empty(t, d.Screenshot)
	assert.Contains(t, d.Error, "target closed")
	assert.Equal(t, "u", d.URL)
}

func TestCapture_DisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	c := &Capturer{Dir: dir}

	d := c.Capture(&fakePage{url: "u", html: "<p>x</p>"}, "s", "p", "a")

	assert.Empty(t, d.Screenshot)
	assert.Empty(t, d.DOM)
	assert.Equal(t, "<p>x</p>", d.Excerpt)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestCapture_NilPage(t *testing.T) {
	d := (&Capturer{}).Capture(nil, "s", "p", "a")
	assert.Equal(t, "no page", d.Error)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "verify_ca_display", SanitizeName("Verify CA display"))
	assert.Equal(t, "create-update", SanitizeName("create-update"))
	assert.Equal(t, "自動テスト_id5", SanitizeName("自動テスト/ID5"))
	assert.Equal(t, "unnamed", SanitizeName("  "))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc", Excerpt(" abc ", 5))
	assert.Equal(t, "自動...", Excerpt("自動テスト", 2))
	assert.True(t, strings.HasSuffix(Excerpt(strings.Repeat("x", 600), 500), "..."))
}
