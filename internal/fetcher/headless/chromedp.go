// Package headless contains the rendered fetch strategy backed by headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/ratelimit"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 500 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after the body is ready for scripts to finish.
	SettleDelay time.Duration
	// DomainQPS caps navigations per host; zero disables the limiter.
	DomainQPS float64
	// ExecPath points at a Chrome binary; empty uses chromedp's lookup.
	ExecPath string
}

// Fetcher implements crawler.FetchStrategy using chromedp. One Chrome process
// (the allocator) is shared; each session gets its own browser context and
// each fetch its own tab.
type Fetcher struct {
	cfg         Config
	logger      *zap.Logger
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	hosts       *ratelimit.Limiter
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome is not
// started until the first session opens.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.DomainQPS < 0 {
		return nil, fmt.Errorf("domain qps must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		logger:      logger,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		hosts:       ratelimit.New(ratelimit.Config{Name: "rendered", RPS: cfg.DomainQPS}),
	}, nil
}

// Mode implements crawler.FetchStrategy.
func (f *Fetcher) Mode() crawler.FetchMode {
	return crawler.FetchModeRendered
}

// NewSession launches a browser context for one crawl job.
func (f *Fetcher) NewSession(ctx context.Context) (crawler.FetchSession, error) {
	browserCtx, browserCancel := chromedp.NewContext(f.allocator)
	warmCtx, warmCancel := context.WithTimeout(browserCtx, f.cfg.NavigationTimeout)
	defer warmCancel()
	stop := forwardCancel(ctx, warmCancel)
	defer stop()
	if err := chromedp.Run(warmCtx); err != nil {
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &session{fetcher: f, browserCtx: browserCtx, cancel: browserCancel}, nil
}

// Close shuts down the shared Chrome process.
func (f *Fetcher) Close() {
	f.allocCancel()
}

type session struct {
	fetcher    *Fetcher
	browserCtx context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

// Fetch navigates with a headless browser and returns the fully rendered DOM.
func (s *session) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	f := s.fetcher
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer f.release()

	if err := f.waitDomainBudget(ctx, request.URL); err != nil {
		return crawler.FetchResponse{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, f.navTimeout(request.Timeout))
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	page, err := f.runHeadless(taskCtx, request)
	if err != nil {
		kind := crawler.ErrorKindRender
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			kind = crawler.ErrorKindTimeout
		}
		return crawler.FetchResponse{}, &crawler.FetchError{Kind: kind, URL: request.URL, Err: err}
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, page.finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	if status < 200 || status > 299 {
		return crawler.FetchResponse{}, crawler.NewStatusError(request.URL, status)
	}
	contentType := headers.Get("Content-Type")
	if !isHTMLType(contentType) {
		return crawler.FetchResponse{}, fmt.Errorf("%s (%s): %w", request.URL, contentType, crawler.ErrNonHTMLContent)
	}

	return crawler.FetchResponse{
		URL:         request.URL,
		FinalURL:    responseURL,
		StatusCode:  status,
		ContentType: contentType,
		Headers:     headers,
		Body:        []byte(page.html),
		Title:       page.title,
		Duration:    time.Since(start),
		Rendered:    true,
	}, nil
}

// Close releases the session's browser context.
func (s *session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

type renderedPage struct {
	html     string
	title    string
	finalURL string
}

func (f *Fetcher) runHeadless(ctx context.Context, request crawler.FetchRequest) (renderedPage, error) {
	var page renderedPage
	actions := []chromedp.Action{
		f.networkSetupAction(request),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&page.finalURL),
		chromedp.Title(&page.title),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return renderedPage{}, fmt.Errorf("chromedp run: %w", err)
	}
	return page, nil
}

func (f *Fetcher) networkSetupAction(request crawler.FetchRequest) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		userAgent := request.UserAgent
		if userAgent == "" {
			userAgent = f.cfg.UserAgent
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(request.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(request.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) waitDomainBudget(ctx context.Context, rawURL string) error {
	if err := f.hosts.Wait(ctx, rawURL); err != nil {
		return fmt.Errorf("wait render limiter: %w", err)
	}
	return nil
}

func (f *Fetcher) navTimeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// forwardCancel cancels a browser-derived context when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// responseMeta keeps the first document response seen by a tab.
type responseMeta struct {
	mu       sync.RWMutex
	captured bool
	status   int
	headers  http.Header
	url      string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captured {
		return
	}
	m.captured = true
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

// isHTMLType accepts HTML documents; an unknown type is assumed to be HTML
// since the browser already rendered it.
func isHTMLType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
