package crawler

import (
	"net/http"
	"time"
)

// FetchMode selects the page fetch strategy.
type FetchMode string

// Supported fetch modes.
const (
	FetchModeHTTP     FetchMode = "http"
	FetchModeRendered FetchMode = "rendered"
	// FetchModeAuto fetches over HTTP and re-renders pages the JS detector flags.
	FetchModeAuto FetchMode = "auto"
)

// Valid reports whether m names a known fetch mode.
func (m FetchMode) Valid() bool {
	switch m {
	case FetchModeHTTP, FetchModeRendered, FetchModeAuto:
		return true
	default:
		return false
	}
}

// Job is the input contract for one crawl. Pointer fields distinguish "unset"
// from a meaningful zero; unset fields take the engine's default options.
type Job struct {
	ID              string            `json:"id" mapstructure:"id"`
	ProjectID       string            `json:"project_id,omitempty" mapstructure:"project_id"`
	URLs            []string          `json:"urls" mapstructure:"urls"`
	MaxDepth        *int              `json:"max_depth,omitempty" mapstructure:"max_depth"`
	MaxPages        int               `json:"max_pages,omitempty" mapstructure:"max_pages"`
	UserAgent       string            `json:"user_agent,omitempty" mapstructure:"user_agent"`
	Timeout         time.Duration     `json:"timeout,omitempty" mapstructure:"timeout"`
	Retries         *int              `json:"retries,omitempty" mapstructure:"retries"`
	CrawlDelay      *time.Duration    `json:"crawl_delay,omitempty" mapstructure:"crawl_delay"`
	RespectRobots   *bool             `json:"respect_robots,omitempty" mapstructure:"respect_robots"`
	AllowedDomains  []string          `json:"allowed_domains,omitempty" mapstructure:"allowed_domains"`
	AllowedPaths    []string          `json:"allowed_paths,omitempty" mapstructure:"allowed_paths"`
	IncludePatterns []string          `json:"include_patterns,omitempty" mapstructure:"include_patterns"`
	ExcludePatterns []string          `json:"exclude_patterns,omitempty" mapstructure:"exclude_patterns"`
	Headers         map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Concurrency     int               `json:"concurrency,omitempty" mapstructure:"concurrency"`
	Mode            FetchMode         `json:"mode,omitempty" mapstructure:"mode"`
}

// Assets groups the sub-resources referenced by a page.
type Assets struct {
	Images      []string `json:"images"`
	Scripts     []string `json:"scripts"`
	Stylesheets []string `json:"stylesheets"`
}

// Headings maps "h1".."h6" to heading texts in document order.
type Headings map[string][]string

// CrawledPage is the immutable snapshot of one successfully fetched page.
type CrawledPage struct {
	URL         string            `json:"url"`
	FinalURL    string            `json:"final_url,omitempty"`
	Title       string            `json:"title"`
	StatusCode  int               `json:"status_code"`
	ContentType string            `json:"content_type"`
	Size        int               `json:"size"`
	LoadTime    time.Duration     `json:"load_time"`
	Depth       int               `json:"depth"`
	HTML        string            `json:"html,omitempty"`
	Truncated   bool              `json:"truncated,omitempty"`
	Links       []string          `json:"links"`
	Assets      Assets            `json:"assets"`
	Meta        map[string]string `json:"meta"`
	Headings    Headings          `json:"headings"`
	Rendered    bool              `json:"rendered"`
	CrawledAt   time.Time         `json:"crawled_at"`
	SEO         SEOAudit          `json:"seo"`
}

// CrawlError records a page that could not be crawled. It never fails the job.
type CrawlError struct {
	URL        string    `json:"url"`
	Message    string    `json:"message"`
	Kind       ErrorKind `json:"kind"`
	StatusCode int       `json:"status_code,omitempty"`
	Attempts   int       `json:"attempts"`
	Depth      int       `json:"depth"`
	Timestamp  time.Time `json:"timestamp"`
}

// Progress is a point-in-time snapshot of a running crawl.
type Progress struct {
	Total                  int           `json:"total"`
	Processed              int           `json:"processed"`
	Pending                int           `json:"pending"`
	Errors                 int           `json:"errors"`
	Depth                  int           `json:"depth"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining,omitempty"`
}

// Stats aggregates a finished crawl.
type Stats struct {
	PagesCrawled            int           `json:"pages_crawled"`
	Errors                  int           `json:"errors"`
	AverageLoadTime         time.Duration `json:"average_load_time"`
	SuccessRate             float64       `json:"success_rate"`
	TotalDuration           time.Duration `json:"total_duration"`
	AveragePerformanceScore float64       `json:"average_performance_score,omitempty"`
	AverageSEOScore         float64       `json:"average_seo_score,omitempty"`
	StatusCodes             map[int]int   `json:"status_codes,omitempty"`
}

// Result is returned by Engine.Crawl and carried by the crawl-finished event.
type Result struct {
	JobID         string        `json:"job_id"`
	Pages         []CrawledPage `json:"pages"`
	Errors        []CrawlError  `json:"errors"`
	Progress      Progress      `json:"progress"`
	Completed     bool          `json:"completed"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	TotalDuration time.Duration `json:"total_duration"`
	Stats         Stats         `json:"stats"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID     string
	URL       string
	Depth     int
	UserAgent string
	Headers   http.Header
	Timeout   time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Title       string
	Duration    time.Duration
	Rendered    bool
}

// Analysis is what an Analyzer extracts from one HTML document.
type Analysis struct {
	Title    string
	Links    []string
	Assets   Assets
	Meta     map[string]string
	Headings Headings
	Audit    SEOAudit
}

// RobotsCacheStats reports the process-wide robots cache state.
type RobotsCacheStats struct {
	Entries       int           `json:"entries"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	FetchFailures int64         `json:"fetch_failures"`
	TTL           time.Duration `json:"ttl"`
}

// EngineStats is returned by Engine.Stats.
type EngineStats struct {
	ActiveCrawls   int              `json:"active_crawls"`
	ActiveJobIDs   []string         `json:"active_job_ids"`
	RobotsCache    RobotsCacheStats `json:"robots_cache"`
	DefaultOptions Options          `json:"default_options"`
	Mode           FetchMode        `json:"mode"`
}
