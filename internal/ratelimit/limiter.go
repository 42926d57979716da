// Package ratelimit implements per-host token buckets that cap how often a
// fetcher may hit the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "seocrawler_host_limiter_wait_seconds",
	Help:    "Time fetches spent blocked on a per-host rate limiter.",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
}, []string{"limiter"})

// Config holds rate limiter configuration.
type Config struct {
	// Name labels the limiter's wait metric, e.g. "http" or "rendered".
	Name string
	// RPS is the sustained rate per host. Zero or less disables limiting.
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per host. A nil *Limiter never blocks.
type Limiter struct {
	name  string
	limit rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New returns a Limiter, or nil when cfg.RPS disables limiting.
func New(cfg Config) *Limiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Limiter{
		name:  name,
		limit: rate.Limit(cfg.RPS),
		burst: burst,
		hosts: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host of rawURL has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	bucket := l.bucket(strings.ToLower(u.Hostname()))
	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		waitSeconds.WithLabelValues(l.name).Observe(waited.Seconds())
	}
	return nil
}

// Hosts reports how many hosts currently have a bucket.
func (l *Limiter) Hosts() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.hosts[host] = b
	}
	return b
}
