// Package ratelimit paces browser navigations so parallel scenarios do
// not flood the shared QA environment.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Pacer limits how often actors may navigate or reload. A rate of zero
// disables pacing.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows perSecond navigations with the given burst.
func NewPacer(perSecond float64, burst int) *Pacer {
	if burst < 1 {
		burst = 1
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Wait blocks until the next navigation is allowed. A nil Pacer never blocks.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.limiter.Limit() == 0 {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// HostPacers hands out one Pacer per target host.
type HostPacers struct {
	perSecond float64
	burst     int
	mu        sync.Mutex
	pacers    map[string]*Pacer
}

func NewHostPacers(perSecond float64, burst int) *HostPacers {
	return &HostPacers{perSecond: perSecond, burst: burst, pacers: make(map[string]*Pacer)}
}

// For returns the Pacer for rawURL's host. Unparseable URLs share the "" pacer.
func (h *HostPacers) For(rawURL string) *Pacer {
	if h == nil {
		return nil
	}
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pacers[host]
	if !ok {
		p = NewPacer(h.perSecond, h.burst)
		h.pacers[host] = p
	}
	return p
}

// Wait paces a navigation to rawURL.
func (h *HostPacers) Wait(ctx context.Context, rawURL string) error {
	return h.For(rawURL).Wait(ctx)
}
