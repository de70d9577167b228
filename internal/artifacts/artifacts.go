// Package artifacts captures what a browser session looked like when a
// phase failed: URL, title, a screenshot and the DOM.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"

	"opdflow/internal/core"
)

// maxExcerpt bounds the DOM excerpt kept inline in reports.
const maxExcerpt = 500

// Page is the subset of playwright.Page a capture reads.
type Page interface {
	URL() string
	Title() (string, error)
	Content() (string, error)
	Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error)
}

// Diagnostics describe one session at failure time. File fields are
// empty when capture was disabled or failed.
type Diagnostics struct {
	Actor      string `json:"actor"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	DOM        string `json:"dom,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Capturer writes artifacts under Dir/<scenario>/.
type Capturer struct {
	Dir        string
	Screenshot bool
	DOM        bool
	Clock      core.Clock
}

func (c *Capturer) clock() core.Clock {
	if c.Clock == nil {
		return core.RealClock{}
	}
	return c.Clock
}

// Capture records page state for actor. Capture problems are collected
// in Diagnostics.Error rather than returned: a failed screenshot must
// not hide the failure being diagnosed.
func (c *Capturer) Capture(page Page, scenario, phase, actor string) Diagnostics {
	d := Diagnostics{Actor: actor}
	if page == nil {
		d.Error = "no page"
		return d
	}
	d.URL = page.URL()

	var problems []error
	title, err := page.Title()
	if err != nil {
		problems = append(problems, fmt.Errorf("title: %w", err))
	}
	d.Title = title

	if c == nil {
		if err := errors.Join(problems...); err != nil {
			d.Error = err.Error()
		}
		return d
	}

	base := ""
	if c.Screenshot || c.DOM {
		dir := filepath.Join(c.Dir, SanitizeName(scenario))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			problems = append(problems, fmt.Errorf("artifact dir: %w", err))
		} else {
			stamp := c.clock().Now().Format("20060102-150405")
			base = filepath.Join(dir, fmt.Sprintf("%s-%s-%s", SanitizeName(phase), SanitizeName(actor), stamp))
		}
	}

	if c.Screenshot && base != "" {
		path := base + ".png"
		if _, err := page.Screenshot(playwright.PageScreenshotOptions{
			Path:     playwright.String(path),
			FullPage: playwright.Bool(true),
		}); err != nil {
			problems = append(problems, fmt.Errorf("screenshot: %w", err))
		} else {
			d.Screenshot = path
		}
	}

	html, err := page.Content()
	if err != nil {
		problems = append(problems, fmt.Errorf("content: %w", err))
	} else {
		d.Excerpt = Excerpt(html, maxExcerpt)
		if c.DOM && base != "" {
			path := base + ".html"
			if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
				problems = append(problems, fmt.Errorf("dom: %w", err))
			} else {
				d.DOM = path
			}
		}
	}

	if err := errors.Join(problems...); err != nil {
		d.Error = err.Error()
	}
	return d
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// SanitizeName makes s safe as a file name component.
func SanitizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.")
	if s == "" {
		return "unnamed"
	}
	return s
}

// Excerpt shortens s to at most n runes.
func Excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
