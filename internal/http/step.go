package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"opdflow/internal/core"
	"opdflow/internal/errs"
	"opdflow/internal/ratelimit"
	"opdflow/internal/template"
)

const (
	// maxDebugBodySize limits response body logged in verbose mode.
	maxDebugBodySize = 4096
	// maxExtractBodySize limits response body kept for extraction and probes.
	maxExtractBodySize = 10 * 1024 * 1024 // 10MB
)

// pendingStatus are responses meaning "not there yet" rather than broken.
var pendingStatus = map[int]bool{
	http.StatusNotFound:           true,
	http.StatusConflict:           true,
	http.StatusTooEarly:           true,
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// Request describes one API call. URL, Body and Headers may reference
// phase outputs as ${name}.
type Request struct {
	Name    string            `yaml:"name"`
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
	// Extract maps output names to JSONPath expressions ($.id).
	Extract map[string]string `yaml:"extract,omitempty"`
}

// Result is the outcome of one Step.
type Result struct {
	Duration   time.Duration
	StatusCode int
	Body       []byte
	Extract    core.Outputs
}

// Step executes a Request.
type Step struct {
	req    Request
	client *http.Client
	debug  *DebugLogger
	pacers *ratelimit.HostPacers
}

func NewStep(req Request, client *http.Client, debug *DebugLogger, pacers *ratelimit.HostPacers) *Step {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Step{req: req, client: client, debug: debug, pacers: pacers}
}

func (s *Step) Name() string {
	return s.req.Name
}

// Execute sends the request. Transport failures and unexpected statuses
// are Infrastructure errors; pending statuses and missing extraction
// paths are NotReady so the step can back a probe.
func (s *Step) Execute(ctx context.Context, vars core.Variables) (Result, error) {
	actor := core.ActorFromContext(ctx)
	op := "api " + s.req.Name
	start := time.Now()

	fail := func(err error) (Result, error) {
		duration := time.Since(start)
		s.debug.LogError(actor, s.req.Name, err.Error(), duration)
		return Result{Duration: duration}, err
	}

	url, err := template.Substitute(s.req.URL, vars)
	if err != nil {
		return fail(errs.Wrap(errs.Infrastructure, op, "url", err))
	}
	body, err := template.Substitute(s.req.Body, vars)
	if err != nil {
		return fail(errs.Wrap(errs.Infrastructure, op, "body", err))
	}
	headers, err := template.SubstituteMap(s.req.Headers, vars)
	if err != nil {
		return fail(errs.Wrap(errs.Infrastructure, op, "headers", err))
	}

	if err := s.pacers.Wait(ctx, url); err != nil {
		return fail(errs.Infra(op, err))
	}

	req, err := http.NewRequestWithContext(ctx, s.req.Method, url, strings.NewReader(body))
	if err != nil {
		return fail(errs.Infra(op, err))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	s.debug.LogRequest(actor, s.req.Name, req)

	resp, err := s.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		s.debug.LogError(actor, s.req.Name, err.Error(), duration)
		return Result{Duration: duration}, errs.Infra(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractBodySize))
	if err != nil {
		s.debug.LogError(actor, s.req.Name, err.Error(), duration)
		return Result{Duration: duration, StatusCode: resp.StatusCode}, errs.Wrap(errs.Infrastructure, op, "reading body", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable

	debugBody := respBody
	if len(debugBody) > maxDebugBodySize {
		debugBody = debugBody[:maxDebugBodySize]
	}
	s.debug.LogResponse(actor, s.req.Name, resp, debugBody, duration)

	result := Result{Duration: duration, StatusCode: resp.StatusCode, Body: respBody}

	if resp.StatusCode >= 400 {
		kind := errs.Infrastructure
		if pendingStatus[resp.StatusCode] {
			kind = errs.NotReady
		}
		return result, errs.New(kind, op, fmt.Sprintf("%s %s: %s", s.req.Method, url, resp.Status))
	}

	if len(s.req.Extract) > 0 {
		extracted, err := template.Extract(respBody, s.req.Extract)
		if err != nil {
			return result, errs.Wrap(errs.NotReady, op, "extract", err)
		}
		result.Extract = extracted
	}
	return result, nil
}
