package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// FetchSession is a Fetcher bound to one crawl job. Close releases anything the
// session holds (a browser instance for rendered sessions).
type FetchSession interface {
	Fetcher
	Close() error
}

// FetchStrategy opens per-job fetch sessions.
type FetchStrategy interface {
	Mode() FetchMode
	NewSession(ctx context.Context) (FetchSession, error)
}

// Detector decides whether an HTTP response needs a browser render.
type Detector interface {
	NeedsJS(ctx context.Context, resp FetchResponse) bool
}

// RobotsPolicy answers robots.txt questions. Implementations fail open.
type RobotsPolicy interface {
	IsAllowed(ctx context.Context, rawURL, userAgent string, allowedPaths []string) bool
	CrawlDelay(ctx context.Context, rawURL, userAgent string) (time.Duration, bool)
	Stats() RobotsCacheStats
}

// Analyzer turns fetched HTML into page content and an SEO audit.
type Analyzer interface {
	Analyze(html []byte, pageURL string) Analysis
	UpdatePerformanceScore(audit *SEOAudit, loadTime time.Duration)
}

// Observer receives crawl lifecycle events. Notify must not block for long.
type Observer interface {
	Notify(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify implements Observer.
func (f ObserverFunc) Notify(event Event) {
	f(event)
}

// Pauser sleeps for a duration unless ctx ends first.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// CrawlStore persists crawl jobs, pages and errors.
type CrawlStore interface {
	CreateJob(ctx context.Context, job JobRecord) error
	StartJob(ctx context.Context, jobID string, started time.Time) error
	SavePage(ctx context.Context, page PageRecord) error
	SaveError(ctx context.Context, record ErrorRecord) error
	FinishJob(ctx context.Context, jobID string, status JobStatus, finished time.Time, stats Stats) error
	GetJob(ctx context.Context, jobID string) (JobRecord, error)
	ListPages(ctx context.Context, jobID string) ([]PageRecord, error)
	ListErrors(ctx context.Context, jobID string) ([]ErrorRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
