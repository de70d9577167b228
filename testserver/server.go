// Package testserver fakes the doctor-facing OPD surface with
// configurable propagation and accrual delays, so that polling can be
// exercised without the real systems.
package testserver

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"opdflow/internal/core"
)

// Options tunes how slowly the fake surface converges.
type Options struct {
	// PropagationDelay is how long a target takes to reach /sp/home.
	PropagationDelay time.Duration
	// AccrualDelay is how long granted points take to show up.
	AccrualDelay time.Duration
	Clock        core.Clock
}

// Message is a created OPD message.
type Message struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	OpeningAction int    `json:"opening_action"`

	// targeted maps system codes to when they were added.
	targeted map[string]time.Time
}

// Server is the fake OPD surface.
type Server struct {
	opts Options
	mux  *http.ServeMux

	nextID   atomic.Int64
	mu       sync.Mutex
	messages map[string]*Message
	order    []string
}

// NewServer creates a server with all endpoints registered.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	s := &Server{
		opts:     opts,
		mux:      http.NewServeMux(),
		messages: make(map[string]*Message),
	}
	s.nextID.Store(4700)
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status/{code}", s.handleStatus)
	s.mux.HandleFunc("GET /delay/{ms}", s.handleDelay)
	s.mux.HandleFunc("POST /api/messages", s.handleCreate)
	s.mux.HandleFunc("POST /api/messages/{id}/targets", s.handleTargets)
	s.mux.HandleFunc("GET /api/points/{code}", s.handlePoints)
	s.mux.HandleFunc("GET /sp/home", s.handleHome)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns the status code in the path.
// Example: GET /status/503
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
	fmt.Fprintf(w, "%d %s", code, http.StatusText(code))
}

// handleDelay waits the given milliseconds before responding.
// Example: GET /delay/100
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.PathValue("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}
	if err := s.opts.Clock.Sleep(r.Context(), time.Duration(ms)*time.Millisecond); err != nil {
		return
	}
	fmt.Fprintf(w, "delayed %dms", ms)
}

// handleCreate creates a message.
// Body: {"title": "...", "opening_action": 50}
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title         string `json:"title"`
		OpeningAction int    `json:"opening_action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	m := &Message{
		ID:            strconv.FormatInt(s.nextID.Add(1), 10),
		Title:         req.Title,
		OpeningAction: req.OpeningAction,
		targeted:      make(map[string]time.Time),
	}
	s.mu.Lock()
	s.messages[m.ID] = m
	s.order = append(s.order, m.ID)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, m)
}

// handleTargets adds doctors to a message's target list.
// Body: {"system_codes": ["0000909180"]}
func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SystemCodes []string `json:"system_codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.SystemCodes) == 0 {
		http.Error(w, "system_codes is required", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	now := s.opts.Clock.Now()

	s.mu.Lock()
	m, ok := s.messages[id]
	if ok {
		for _, code := range req.SystemCodes {
			if _, seen := m.targeted[code]; !seen {
				m.targeted[code] = now
			}
		}
	}
	var n int
	if ok {
		n = len(m.targeted)
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "no such message", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "targets": n})
}

// handlePoints reports the actions granted to a doctor by messages
// whose accrual delay has passed.
func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	now := s.opts.Clock.Now()
	granted := 0
	s.mu.Lock()
	for _, m := range s.messages {
		if at, ok := m.targeted[code]; ok && !now.Before(at.Add(s.opts.AccrualDelay)) {
			granted += m.OpeningAction
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"system_code": code, "granted": granted})
}

// handleHome lists the titles that have propagated, newest first.
// ?system_code= narrows the list to one doctor.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("system_code")
	titles := s.visible(code, s.opts.Clock.Now())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var b strings.Builder
	b.WriteString(`<!doctype html><html><head><meta charset="utf-8"><title>OPD</title></head><body><ul id="opd-list">`)
	for _, t := range titles {
		fmt.Fprintf(&b, `<li><span class="title">%s</span></li>`, html.EscapeString(t))
	}
	if len(titles) == 0 {
		b.WriteString(`<li class="empty">お知らせはありません</li>`)
	}
	b.WriteString(`</ul></body></html>`)
	fmt.Fprint(w, b.String())
}

func (s *Server) visible(code string, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var titles []string
	for _, id := range slices.Backward(s.order) {
		m := s.messages[id]
		for c, at := range m.targeted {
			if (code == "" || c == code) && !now.Before(at.Add(s.opts.PropagationDelay)) {
				titles = append(titles, m.Title)
				break
			}
		}
	}
	return titles
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
