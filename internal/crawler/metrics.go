package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalFetchAttempts tracks every fetch attempt, retries included.
	TotalFetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seocrawler_fetch_attempts_total",
		Help: "The total number of page fetch attempts, retries included.",
	})
	// TotalRetries tracks attempts that were retried after a failure.
	TotalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seocrawler_fetch_retries_total",
		Help: "The total number of fetch retries.",
	})
	// TotalRobotsDenied tracks URLs skipped because robots.txt disallowed them.
	TotalRobotsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seocrawler_robots_denied_total",
		Help: "The total number of URLs skipped by robots.txt rules.",
	})
	// TotalNonHTMLSkipped tracks fetched resources skipped for their content type.
	TotalNonHTMLSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seocrawler_non_html_skipped_total",
		Help: "The total number of fetched resources skipped because they were not HTML.",
	})
	// TotalRenderEscalations tracks auto-mode pages re-fetched through the browser.
	TotalRenderEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seocrawler_render_escalations_total",
		Help: "The total number of pages the JS detector sent to the rendered fetcher.",
	})
	// ActiveCrawls tracks crawl jobs currently running in this process.
	ActiveCrawls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seocrawler_active_crawls",
		Help: "Number of crawl jobs currently running.",
	})
	politenessWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "seocrawler_politeness_wait_seconds",
		Help:    "Histogram of per-domain crawl delay waits.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

func observePolitenessWait(d time.Duration) {
	politenessWaitSeconds.Observe(d.Seconds())
}
