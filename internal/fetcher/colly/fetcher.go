// Package collyfetcher implements the plain HTTP fetch strategy using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/ratelimit"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 10 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
	// DomainQPS caps requests per host; zero disables the limiter.
	DomainQPS float64
	// Transport overrides the pooled default transport (tests).
	Transport http.RoundTripper
}

// Fetcher implements crawler.FetchStrategy and crawler.FetchSession on top of
// a shared Colly collector. Each Fetch runs on a clone so callbacks never leak
// between requests.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	hosts         *ratelimit.Limiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = crawler.DefaultUserAgent
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodySize),
		colly.UserAgent(cfg.UserAgent),
	)

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	// The backend client is shared by every clone; per-request deadlines come
	// from the request context instead.
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		hosts:         ratelimit.New(ratelimit.Config{Name: "http", RPS: cfg.DomainQPS}),
	}
}

// Mode implements crawler.FetchStrategy.
func (f *Fetcher) Mode() crawler.FetchMode {
	return crawler.FetchModeHTTP
}

// NewSession implements crawler.FetchStrategy. HTTP sessions are stateless, so
// the fetcher serves as its own session.
func (f *Fetcher) NewSession(context.Context) (crawler.FetchSession, error) {
	return f, nil
}

// Close implements crawler.FetchSession.
func (f *Fetcher) Close() error {
	return nil
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	if err := f.hosts.Wait(ctx, request.URL); err != nil {
		return crawler.FetchResponse{}, &crawler.FetchError{Kind: crawler.ErrorKindTimeout, URL: request.URL, Err: err}
	}
	start := time.Now()
	collector := f.buildCollector(ctx, request)
	f.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return crawler.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, request crawler.FetchRequest) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	if request.UserAgent != "" {
		collector.UserAgent = request.UserAgent
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		finalURL := request.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			*fetchErr = crawler.NewStatusError(request.URL, r.StatusCode)
			return
		}
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		contentType := headers.Get("Content-Type")
		if !isHTML(contentType, r.Body) {
			*fetchErr = fmt.Errorf("%s (%s): %w", request.URL, contentType, crawler.ErrNonHTMLContent)
			return
		}
		*result = crawler.FetchResponse{
			URL:         request.URL,
			FinalURL:    finalURL,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Headers:     headers,
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
			Rendered:    false,
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if *fetchErr != nil {
			return
		}
		if r != nil && r.StatusCode >= 400 {
			*fetchErr = crawler.NewStatusError(request.URL, r.StatusCode)
			return
		}
		kind, _ := crawler.ClassifyError(err)
		*fetchErr = &crawler.FetchError{Kind: kind, URL: request.URL, Err: err}
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &crawler.FetchError{Kind: crawler.ErrorKindTimeout, URL: url, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			kind, _ := crawler.ClassifyError(err)
			return &crawler.FetchError{Kind: kind, URL: url, Err: fmt.Errorf("colly visit failed: %w", err)}
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	if request.Headers == nil || r.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// isHTML accepts text/html and XHTML. A missing Content-Type falls back to sniffing.
func isHTML(contentType string, body []byte) bool {
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
