// Package robots provides the process-wide robots.txt policy cache.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

const (
	defaultTTL      = 30 * time.Minute
	defaultTimeout  = 10 * time.Second
	defaultMaxBytes = 512 << 10
)

// Config controls fetching and caching of robots.txt files.
type Config struct {
	UserAgent string
	TTL       time.Duration
	Timeout   time.Duration
	MaxBytes  int64
	Client    *http.Client
}

// Cache fetches robots.txt once per host and TTL and answers policy questions
// from the cached rules. Any failure to obtain a robots file allows everything.
type Cache struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	maxBytes  int64
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	failures atomic.Int64
}

type cacheEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

var allowAll = mustAllowAll()

func mustAllowAll() *robotstxt.RobotsData {
	data, err := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	if err != nil {
		panic(fmt.Sprintf("build allow-all robots data: %v", err))
	}
	return data
}

// New builds a Cache.
func New(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Cache{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		maxBytes:  maxBytes,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]cacheEntry),
	}
}

// IsAllowed reports whether userAgent may fetch rawURL. Paths under any of
// allowedPaths are allowed even when robots.txt disallows them.
func (c *Cache) IsAllowed(ctx context.Context, rawURL, userAgent string, allowedPaths []string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return false
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, prefix := range allowedPaths {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	group := c.rules(ctx, target).FindGroup(c.agent(userAgent))
	if group == nil {
		return true
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay of the group matching userAgent, if any.
func (c *Cache) CrawlDelay(ctx context.Context, rawURL, userAgent string) (time.Duration, bool) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return 0, false
	}
	group := c.rules(ctx, target).FindGroup(c.agent(userAgent))
	if group == nil || group.CrawlDelay <= 0 {
		return 0, false
	}
	return group.CrawlDelay, true
}

// Sitemaps returns the Sitemap directives for domain, which may be a bare host
// ("example.com", https assumed) or any URL on the site.
func (c *Cache) Sitemaps(ctx context.Context, domain, _ string) []string {
	raw := strings.TrimSpace(domain)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	target, err := url.Parse(raw)
	if err != nil || target.Host == "" {
		return nil
	}
	sitemaps := c.rules(ctx, target).Sitemaps
	return append([]string(nil), sitemaps...)
}

// ClearCache drops every cached robots file.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Invalidate drops the cached robots file for host.
func (c *Cache) Invalidate(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, host)
}

// Stats reports cache size and counters.
func (c *Cache) Stats() crawler.RobotsCacheStats {
	now := c.now()
	c.mu.RLock()
	entries := 0
	for _, entry := range c.entries {
		if now.Sub(entry.fetched) < c.ttl {
			entries++
		}
	}
	c.mu.RUnlock()
	return crawler.RobotsCacheStats{
		Entries:       entries,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		FetchFailures: c.failures.Load(),
		TTL:           c.ttl,
	}
}

func (c *Cache) agent(userAgent string) string {
	if strings.TrimSpace(userAgent) != "" {
		return userAgent
	}
	if c.userAgent != "" {
		return c.userAgent
	}
	return "*"
}

// rules returns cached rules for target's host, fetching them on a miss.
// Concurrent misses for one host share a single fetch.
func (c *Cache) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(target.Host)

	c.mu.RLock()
	entry, ok := c.entries[host]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		c.hits.Add(1)
		return entry.rules
	}
	c.misses.Add(1)

	// A canceled job must not cache a fail-open entry for everyone else.
	fetchCtx := context.WithoutCancel(ctx)
	result, _, _ := c.group.Do(host, func() (any, error) {
		data, err := c.fetch(fetchCtx, target)
		if err != nil {
			c.failures.Add(1)
			c.logger.Warn("robots fetch failed; allowing access", zap.String("host", host), zap.Error(err))
			data = allowAll
		}
		c.mu.Lock()
		c.entries[host] = cacheEntry{fetched: c.now(), rules: data}
		c.mu.Unlock()
		return data, nil
	})
	data, ok := result.(*robotstxt.RobotsData)
	if !ok || data == nil {
		return allowAll
	}
	return data
}

func (c *Cache) fetch(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}
