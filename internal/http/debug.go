package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const maxBodyLogSize = 1024

// redactedHeaders are never written to the debug log.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// secretField matches JSON and form credentials in logged bodies.
var secretField = regexp.MustCompile(`("(?:password|login_password)"\s*:\s*")[^"]*(")|((?:^|&)(?:password|login_password)=)[^&]*`)

// DebugLogger dumps API traffic for --verbose runs. A nil DebugLogger
// logs nothing.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogRequest(actor string, stepName string, req *http.Request) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n[%s] >>> REQUEST: %s\n", label(actor), stepName)
	fmt.Fprintf(&buf, "  %s %s\n", req.Method, req.URL.String())
	writeHeaders(&buf, req.Header)

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err == nil && len(body) > 0 {
			req.Body = io.NopCloser(bytes.NewReader(body))
			fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
		}
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogResponse(actor string, stepName string, resp *http.Response, body []byte, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%s] <<< RESPONSE: %s (%s)\n", label(actor), stepName, duration.Round(time.Millisecond))
	fmt.Fprintf(&buf, "  Status: %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	writeHeaders(&buf, resp.Header)

	if len(body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogError(actor string, stepName string, errMsg string, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[%s] !!! ERROR: %s (%s)\n  %s\n",
		label(actor), stepName, duration.Round(time.Millisecond), errMsg)
}

func label(actor string) string {
	if actor == "" {
		return "api"
	}
	return actor
}

func writeHeaders(buf *bytes.Buffer, h http.Header) {
	if len(h) == 0 {
		return
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	buf.WriteString("  Headers:\n")
	for _, name := range names {
		value := strings.Join(h[name], ", ")
		if redactedHeaders[http.CanonicalHeaderKey(name)] {
			value = "[redacted]"
		}
		fmt.Fprintf(buf, "    %s: %s\n", name, value)
	}
}

// truncateBody masks credentials and shortens body for the log.
func truncateBody(body []byte) string {
	text := secretField.ReplaceAllString(string(body), "${1}${3}[redacted]${2}")
	if len(text) <= maxBodyLogSize {
		return text
	}
	return fmt.Sprintf("%s... (truncated, %d bytes total)", text[:maxBodyLogSize], len(body))
}
