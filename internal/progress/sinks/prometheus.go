package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/progress"
	"github.com/JakeFAU/seo-crawler/internal/urlutil"
)

// PrometheusSink exports crawl metrics via Prometheus. It owns all collectors
// for jobs started/completed/running and per-site page counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	pagesCrawled *prometheus.CounterVec
	pageBytes    *prometheus.CounterVec
	pageLoadTime *prometheus.HistogramVec
	pageErrors   *prometheus.CounterVec
	seoScore     prometheus.Histogram

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seocrawler_jobs_started_total",
			Help: "Total crawl jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seocrawler_jobs_finished_total",
			Help: "Total crawl jobs finished partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seocrawler_jobs_running",
			Help: "Current number of running crawl jobs seen by the event stream.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seocrawler_job_runtime_seconds",
			Help:    "Wall time per finished crawl job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pagesCrawled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seocrawler_pages_crawled_total",
			Help: "Crawled pages partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		pageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seocrawler_page_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		pageLoadTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seocrawler_page_load_seconds",
			Help:    "Page load time partitioned by site.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		pageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seocrawler_page_errors_total",
			Help: "Pages that failed, partitioned by site and error kind.",
		}, []string{"site", "kind"}),
		seoScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seocrawler_page_seo_score",
			Help:    "Distribution of per-page SEO scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.pagesCrawled,
		s.pageBytes,
		s.pageLoadTime,
		s.pageErrors,
		s.seoScore,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []crawler.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt crawler.Event) {
	switch evt.Type {
	case crawler.EventCrawlStarted:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case crawler.EventCrawlFinished:
		s.handleFinished(evt)
	case crawler.EventPageCrawled:
		s.handlePage(evt.Page)
	case crawler.EventCrawlError:
		s.pageErrors.WithLabelValues(siteLabel(evt.Error.URL), string(evt.Error.Kind)).Inc()
	}
}

func (s *PrometheusSink) handleFinished(evt crawler.Event) {
	label := "completed"
	if !evt.Result.Completed {
		label = "incomplete"
	}
	s.jobsCompleted.WithLabelValues(label).Inc()
	if d := evt.Result.TotalDuration; d > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(d.Seconds())
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) handlePage(page *crawler.CrawledPage) {
	site := siteLabel(page.URL)
	s.pagesCrawled.WithLabelValues(site, string(progress.ClassifyStatus(page.StatusCode))).Inc()
	if page.Size > 0 {
		s.pageBytes.WithLabelValues(site).Add(float64(page.Size))
	}
	if page.LoadTime > 0 {
		s.pageLoadTime.WithLabelValues(site).Observe(page.LoadTime.Seconds())
	}
	s.seoScore.Observe(float64(page.SEO.SEOScore))
}

func siteLabel(rawURL string) string {
	site := urlutil.Hostname(rawURL)
	if site == "" {
		return "unknown"
	}
	return site
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
