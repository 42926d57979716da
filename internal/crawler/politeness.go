package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// domainScheduler spaces fetches to the same domain by at least the domain's delay.
// Slots are reserved under the lock, so concurrent workers queue up behind each
// other instead of all observing the same "last crawl" time.
type domainScheduler struct {
	mu     sync.Mutex
	last   map[string]time.Time
	now    func() time.Time
	pauser Pauser
}

func newDomainScheduler(pauser Pauser, now func() time.Time) *domainScheduler {
	if pauser == nil {
		pauser = &timerPauseController{}
	}
	if now == nil {
		now = time.Now
	}
	return &domainScheduler{
		last:   make(map[string]time.Time),
		now:    now,
		pauser: pauser,
	}
}

// reserve books the next fetch slot for domain and returns how long to wait for it.
func (s *domainScheduler) reserve(domain string, delay time.Duration) time.Duration {
	key := strings.ToLower(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	at := now
	if last, ok := s.last[key]; ok && delay > 0 {
		if earliest := last.Add(delay); earliest.After(at) {
			at = earliest
		}
	}
	s.last[key] = at
	return at.Sub(now)
}

// Wait blocks until the caller may fetch from domain.
func (s *domainScheduler) Wait(ctx context.Context, domain string, delay time.Duration) error {
	wait := s.reserve(domain, delay)
	if wait <= 0 {
		return nil
	}
	observePolitenessWait(wait)
	return s.pauser.Pause(ctx, wait)
}

// lastCrawl returns the most recent slot handed out for domain.
func (s *domainScheduler) lastCrawl(domain string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[strings.ToLower(domain)]
	return t, ok
}

type timerPauseController struct{}

// Pause implements Pauser with a timer that yields to ctx.
func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
