package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/seo-crawler/internal/urlutil"
)

// crawlRun executes one job: the batch loop plus the per-URL workers.
type crawlRun struct {
	engine    *Engine
	plan      *jobPlan
	state     *crawlState
	scheduler *domainScheduler
	sem       *semaphore.Weighted
	session   FetchSession
	observers []Observer
	logger    *zap.Logger
}

func newCrawlRun(e *Engine, plan *jobPlan, observers []Observer) *crawlRun {
	start := e.clock.Now()
	return &crawlRun{
		engine:    e,
		plan:      plan,
		state:     newCrawlState(start),
		scheduler: newDomainScheduler(e.pauser, e.clock.Now),
		sem:       semaphore.NewWeighted(int64(plan.concurrency)),
		observers: observers,
		logger:    e.logger.With(zap.String("job_id", plan.id)),
	}
}

func (r *crawlRun) execute(ctx context.Context) Result {
	r.emit(Event{Type: EventCrawlStarted, URLs: append([]string(nil), r.plan.seeds...)})
	r.logger.Info("crawl started",
		zap.Strings("seeds", r.plan.seeds),
		zap.Int("max_depth", r.plan.maxDepth),
		zap.Int("max_pages", r.plan.maxPages),
		zap.Int("concurrency", r.plan.concurrency),
		zap.String("mode", string(r.plan.mode)),
	)

	completed := r.runLoop(ctx)

	result := r.buildResult(completed)
	r.logger.Info("crawl finished",
		zap.Bool("completed", result.Completed),
		zap.Int("pages", len(result.Pages)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.TotalDuration),
	)
	r.emit(Event{Type: EventCrawlFinished, Result: &result})
	return result
}

// runLoop drives the batch loop and reports whether it ended normally.
func (r *crawlRun) runLoop(ctx context.Context) (completed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("crawl loop panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			completed = false
		}
	}()

	session, err := r.engine.openSession(ctx, r.plan.mode, r.logger)
	if err != nil {
		r.logger.Error("no fetch session available", zap.Error(err))
		return false
	}
	r.session = session
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("fetch session close failed", zap.Error(cerr))
		}
	}()

	for _, seed := range r.plan.seeds {
		r.state.enqueue(frontierEntry{url: seed, depth: 0, seed: seed})
	}

	for {
		if ctx.Err() != nil {
			return false
		}
		counts := r.state.counts()
		if counts.pending == 0 || counts.processed >= r.plan.maxPages || counts.depth > r.plan.maxDepth {
			break
		}
		size := min(r.plan.concurrency, counts.pending, r.plan.maxPages-counts.processed)
		batch := r.state.popBatch(size)

		var wg sync.WaitGroup
		for _, entry := range batch {
			wg.Add(1)
			go func(entry frontierEntry) {
				defer wg.Done()
				r.crawlSinglePage(ctx, entry)
			}(entry)
		}
		wg.Wait()

		progress := r.progress()
		r.emit(Event{Type: EventCrawlProgress, Progress: &progress})
	}
	return ctx.Err() == nil
}

// crawlSinglePage processes one URL. Nothing that happens here can fail the job.
func (r *crawlRun) crawlSinglePage(ctx context.Context, entry frontierEntry) {
	if !r.state.markProcessed(entry.url) {
		return
	}
	logger := r.logger.With(zap.String("url", entry.url), zap.Int("depth", entry.depth))
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("page worker panicked", zap.Any("panic", rec))
			r.recordError(ctx, entry, &FetchError{Kind: ErrorKindInternal, URL: entry.url, Err: fmt.Errorf("panic: %v", rec)}, 1)
		}
	}()

	if r.plan.respectRobots && r.engine.robots != nil &&
		!r.engine.robots.IsAllowed(ctx, entry.url, r.plan.userAgent, r.plan.allowedPaths) {
		TotalRobotsDenied.Inc()
		logger.Debug("robots.txt disallows url")
		return
	}

	domain := urlutil.Hostname(entry.url)
	delay := r.effectiveDelay(ctx, entry.url, domain)

	resp, attempts, err := r.fetchWithRetry(ctx, entry, domain, delay, logger)
	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, ErrNonHTMLContent) {
		TotalNonHTMLSkipped.Inc()
		logger.Debug("skipping non-HTML resource")
		return
	}
	if err != nil {
		r.recordError(ctx, entry, err, attempts)
		logger.Info("page failed", zap.Int("attempts", attempts), zap.Error(err))
		return
	}

	page := r.buildPage(entry, resp)
	if page.FinalURL != "" && page.FinalURL != page.URL {
		r.state.markSeen(page.FinalURL)
	}
	if !r.state.addPage(page) {
		return
	}
	added := r.discover(entry, page.Links)
	logger.Debug("page crawled",
		zap.Int("status", page.StatusCode),
		zap.Duration("load_time", page.LoadTime),
		zap.Int("links", len(page.Links)),
		zap.Int("enqueued", added),
	)
	r.emit(Event{Type: EventPageCrawled, Page: &page})
}

// effectiveDelay resolves the politeness delay for domain: job override, then
// robots Crawl-delay, then the engine default.
func (r *crawlRun) effectiveDelay(ctx context.Context, rawURL, domain string) time.Duration {
	if r.plan.hasCrawlDelay {
		return r.plan.crawlDelay
	}
	if cached, ok := r.state.domainDelay(domain); ok {
		return cached
	}
	delay := r.plan.defaultDelay
	if r.plan.respectRobots && r.engine.robots != nil {
		if robotsDelay, ok := r.engine.robots.CrawlDelay(ctx, rawURL, r.plan.userAgent); ok {
			delay = robotsDelay
		}
	}
	r.state.setDomainDelay(domain, delay)
	return delay
}

func (r *crawlRun) fetchWithRetry(
	ctx context.Context,
	entry frontierEntry,
	domain string,
	delay time.Duration,
	logger *zap.Logger,
) (FetchResponse, int, error) {
	policy := r.plan.retryPolicy
	for attempt := 1; ; attempt++ {
		if err := r.scheduler.Wait(ctx, domain, delay); err != nil {
			return FetchResponse{}, attempt, err
		}
		resp, err := r.fetchOnce(ctx, entry)
		if err == nil {
			return resp, attempt, nil
		}
		if ctx.Err() != nil || !policy.ShouldRetry(err, attempt) {
			return FetchResponse{}, attempt, err
		}
		backoff := policy.Backoff(attempt)
		TotalRetries.Inc()
		logger.Debug("retrying fetch", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		if perr := r.engine.pauser.Pause(ctx, backoff); perr != nil {
			return FetchResponse{}, attempt, err
		}
	}
}

func (r *crawlRun) fetchOnce(ctx context.Context, entry frontierEntry) (FetchResponse, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return FetchResponse{}, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer r.sem.Release(1)

	TotalFetchAttempts.Inc()
	fetchCtx, cancel := context.WithTimeout(ctx, r.plan.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.session.Fetch(fetchCtx, FetchRequest{
		JobID:     r.plan.id,
		URL:       entry.url,
		Depth:     entry.depth,
		UserAgent: r.plan.userAgent,
		Headers:   r.plan.headers.Clone(),
		Timeout:   r.plan.timeout,
	})
	if err != nil {
		if errors.Is(err, ErrNonHTMLContent) {
			return FetchResponse{}, err
		}
		if fetchCtx.Err() != nil && ctx.Err() == nil {
			return FetchResponse{}, asTimeout(entry.url, err)
		}
		return FetchResponse{}, err
	}
	if resp.Duration <= 0 {
		resp.Duration = time.Since(start)
	}
	return resp, nil
}

// asTimeout classifies err as a timeout without nesting fetch errors.
func asTimeout(rawURL string, err error) error {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return &FetchError{Kind: ErrorKindTimeout, URL: rawURL, Err: err}
	}
	if fetchErr.Kind == ErrorKindTimeout {
		return err
	}
	out := *fetchErr
	out.Kind = ErrorKindTimeout
	return &out
}

func (r *crawlRun) buildPage(entry frontierEntry, resp FetchResponse) CrawledPage {
	pageURL := entry.url
	finalURL := ""
	if resp.FinalURL != "" {
		finalURL = urlutil.Normalize(resp.FinalURL)
		pageURL = finalURL
	}
	analysis := r.engine.analyzer.Analyze(resp.Body, pageURL)
	r.engine.analyzer.UpdatePerformanceScore(&analysis.Audit, resp.Duration)

	title := analysis.Title
	if title == "" {
		title = strings.TrimSpace(resp.Title)
	}
	html, truncated := truncateHTML(resp.Body, r.plan.maxHTMLBytes)
	return CrawledPage{
		URL:         entry.url,
		FinalURL:    finalURL,
		Title:       title,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Size:        len(resp.Body),
		LoadTime:    resp.Duration,
		Depth:       entry.depth,
		HTML:        html,
		Truncated:   truncated,
		Links:       analysis.Links,
		Assets:      analysis.Assets,
		Meta:        analysis.Meta,
		Headings:    analysis.Headings,
		Rendered:    resp.Rendered,
		CrawledAt:   r.engine.clock.Now(),
		SEO:         analysis.Audit,
	}
}

// discover admits links into the frontier, at most maxLinksPerPage new ones.
func (r *crawlRun) discover(entry frontierEntry, links []string) int {
	added := 0
	for _, link := range links {
		if added >= r.plan.maxLinksPerPage {
			break
		}
		if !r.plan.admits(link, entry.seed) {
			continue
		}
		next := frontierEntry{url: link, depth: urlutil.GetURLDepth(link, entry.seed), seed: entry.seed}
		if r.state.enqueue(next) {
			added++
		}
	}
	return added
}

func (r *crawlRun) recordError(ctx context.Context, entry frontierEntry, err error, attempts int) {
	if ctx.Err() != nil {
		return
	}
	kind, status := ClassifyError(err)
	crawlErr := CrawlError{
		URL:        entry.url,
		Message:    err.Error(),
		Kind:       kind,
		StatusCode: status,
		Attempts:   attempts,
		Depth:      entry.depth,
		Timestamp:  r.engine.clock.Now(),
	}
	r.state.addError(crawlErr)
	r.emit(Event{Type: EventCrawlError, Error: &crawlErr})
}

func (r *crawlRun) progress() Progress {
	counts := r.state.counts()
	progress := Progress{
		Total:     counts.processed + counts.pending,
		Processed: counts.processed,
		Pending:   counts.pending,
		Errors:    counts.errors,
		Depth:     counts.depth,
	}
	if counts.processed > 0 {
		elapsed := r.engine.clock.Now().Sub(r.state.startTime)
		remaining := min(counts.pending, r.plan.maxPages-counts.processed)
		if remaining > 0 && elapsed > 0 {
			progress.EstimatedTimeRemaining = elapsed / time.Duration(counts.processed) * time.Duration(remaining)
		}
	}
	return progress
}

func (r *crawlRun) buildResult(completed bool) Result {
	pages, errs := r.state.snapshot()
	end := r.engine.clock.Now()
	duration := end.Sub(r.state.startTime)
	return Result{
		JobID:         r.plan.id,
		Pages:         pages,
		Errors:        errs,
		Progress:      r.progress(),
		Completed:     completed,
		StartTime:     r.state.startTime,
		EndTime:       end,
		TotalDuration: duration,
		Stats:         computeStats(pages, errs, duration),
	}
}

func (r *crawlRun) emit(event Event) {
	event.JobID = r.plan.id
	event.ProjectID = r.plan.projectID
	if event.Time.IsZero() {
		event.Time = r.engine.clock.Now()
	}
	for _, observer := range r.observers {
		r.notify(observer, event)
	}
}

func (r *crawlRun) notify(observer Observer, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("observer panicked", zap.String("event", string(event.Type)), zap.Any("panic", rec))
		}
	}()
	observer.Notify(event)
}

func computeStats(pages []CrawledPage, errs []CrawlError, duration time.Duration) Stats {
	stats := Stats{
		PagesCrawled:  len(pages),
		Errors:        len(errs),
		TotalDuration: duration,
	}
	if total := len(pages) + len(errs); total > 0 {
		stats.SuccessRate = float64(len(pages)) / float64(total)
	}
	if len(pages) == 0 {
		return stats
	}
	var loadTotal time.Duration
	var perfTotal, seoTotal int
	stats.StatusCodes = make(map[int]int)
	for _, page := range pages {
		loadTotal += page.LoadTime
		perfTotal += page.SEO.PerformanceScore
		seoTotal += page.SEO.SEOScore
		stats.StatusCodes[page.StatusCode]++
	}
	n := len(pages)
	stats.AverageLoadTime = loadTotal / time.Duration(n)
	stats.AveragePerformanceScore = float64(perfTotal) / float64(n)
	stats.AverageSEOScore = float64(seoTotal) / float64(n)
	return stats
}

// truncateHTML caps body at limit bytes without splitting a UTF-8 sequence.
func truncateHTML(body []byte, limit int) (string, bool) {
	if limit <= 0 || len(body) <= limit {
		return string(body), false
	}
	return strings.ToValidUTF8(string(body[:limit]), ""), true
}
