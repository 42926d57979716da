package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/seo-crawler/internal/urlutil"
)

// DefaultUserAgent identifies the crawler when neither the job nor the options set one.
const DefaultUserAgent = "SEOCrawler/1.0 (+https://github.com/JakeFAU/seo-crawler)"

// Options are the engine-wide defaults applied to unset job fields.
type Options struct {
	UserAgent       string        `json:"user_agent" mapstructure:"user_agent"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	Retries         int           `json:"retries" mapstructure:"retries"`
	CrawlDelay      time.Duration `json:"crawl_delay" mapstructure:"crawl_delay"`
	MaxDepth        int           `json:"max_depth" mapstructure:"max_depth"`
	MaxPages        int           `json:"max_pages" mapstructure:"max_pages"`
	Concurrency     int           `json:"concurrency" mapstructure:"concurrency"`
	RespectRobots   bool          `json:"respect_robots" mapstructure:"respect_robots"`
	MaxLinksPerPage int           `json:"max_links_per_page" mapstructure:"max_links_per_page"`
	MaxHTMLBytes    int           `json:"max_html_bytes" mapstructure:"max_html_bytes"`
	RetryBaseDelay  time.Duration `json:"retry_base_delay" mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration `json:"retry_max_delay" mapstructure:"retry_max_delay"`
	Mode            FetchMode     `json:"mode" mapstructure:"mode"`
}

// DefaultOptions returns the built-in engine defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:       DefaultUserAgent,
		Timeout:         30 * time.Second,
		Retries:         2,
		CrawlDelay:      time.Second,
		MaxDepth:        3,
		MaxPages:        100,
		Concurrency:     5,
		RespectRobots:   true,
		MaxLinksPerPage: 100,
		MaxHTMLBytes:    512 << 10,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   30 * time.Second,
		Mode:            FetchModeHTTP,
	}
}

// OptionsPatch is a partial update for Engine.UpdateOptions; nil fields are left alone.
type OptionsPatch struct {
	UserAgent       *string        `json:"user_agent,omitempty"`
	Timeout         *time.Duration `json:"timeout,omitempty"`
	Retries         *int           `json:"retries,omitempty"`
	CrawlDelay      *time.Duration `json:"crawl_delay,omitempty"`
	MaxDepth        *int           `json:"max_depth,omitempty"`
	MaxPages        *int           `json:"max_pages,omitempty"`
	Concurrency     *int           `json:"concurrency,omitempty"`
	RespectRobots   *bool          `json:"respect_robots,omitempty"`
	MaxLinksPerPage *int           `json:"max_links_per_page,omitempty"`
	MaxHTMLBytes    *int           `json:"max_html_bytes,omitempty"`
	Mode            *FetchMode     `json:"mode,omitempty"`
}

// Apply returns o with the non-nil patch fields applied. Invalid values are ignored.
func (o Options) Apply(p OptionsPatch) Options {
	if p.UserAgent != nil && strings.TrimSpace(*p.UserAgent) != "" {
		o.UserAgent = *p.UserAgent
	}
	if p.Timeout != nil && *p.Timeout > 0 {
		o.Timeout = *p.Timeout
	}
	if p.Retries != nil && *p.Retries >= 0 {
		o.Retries = *p.Retries
	}
	if p.CrawlDelay != nil && *p.CrawlDelay >= 0 {
		o.CrawlDelay = *p.CrawlDelay
	}
	if p.MaxDepth != nil && *p.MaxDepth >= 0 {
		o.MaxDepth = *p.MaxDepth
	}
	if p.MaxPages != nil && *p.MaxPages > 0 {
		o.MaxPages = *p.MaxPages
	}
	if p.Concurrency != nil && *p.Concurrency > 0 {
		o.Concurrency = *p.Concurrency
	}
	if p.RespectRobots != nil {
		o.RespectRobots = *p.RespectRobots
	}
	if p.MaxLinksPerPage != nil && *p.MaxLinksPerPage > 0 {
		o.MaxLinksPerPage = *p.MaxLinksPerPage
	}
	if p.MaxHTMLBytes != nil && *p.MaxHTMLBytes > 0 {
		o.MaxHTMLBytes = *p.MaxHTMLBytes
	}
	if p.Mode != nil && p.Mode.Valid() {
		o.Mode = *p.Mode
	}
	return o
}

// withFallbacks fills zero values from DefaultOptions.
func (o Options) withFallbacks() Options {
	def := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = def.UserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.CrawlDelay < 0 {
		o.CrawlDelay = 0
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = def.MaxDepth
	}
	if o.MaxPages <= 0 {
		o.MaxPages = def.MaxPages
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.MaxLinksPerPage <= 0 {
		o.MaxLinksPerPage = def.MaxLinksPerPage
	}
	if o.MaxHTMLBytes <= 0 {
		o.MaxHTMLBytes = def.MaxHTMLBytes
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = def.RetryBaseDelay
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = def.RetryMaxDelay
	}
	if o.Mode == "" {
		o.Mode = def.Mode
	}
	return o
}

// Validate reports everything wrong with the job. The returned error wraps ErrInvalidJob.
func (j Job) Validate() error {
	var errs []error
	if len(j.URLs) == 0 {
		errs = append(errs, errors.New("at least one seed URL required"))
	}
	for _, raw := range j.URLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("malformed seed URL %q", raw))
		}
	}
	if j.MaxDepth != nil && *j.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("max_depth must be >= 0, got %d", *j.MaxDepth))
	}
	if j.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("max_pages must be >= 1, got %d", j.MaxPages))
	}
	if j.Retries != nil && *j.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must be >= 0, got %d", *j.Retries))
	}
	if j.CrawlDelay != nil && *j.CrawlDelay < 0 {
		errs = append(errs, fmt.Errorf("crawl_delay must be >= 0, got %s", *j.CrawlDelay))
	}
	if j.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %s", j.Timeout))
	}
	if j.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 0, got %d", j.Concurrency))
	}
	if j.Mode != "" && !j.Mode.Valid() {
		errs = append(errs, fmt.Errorf("unknown fetch mode %q", j.Mode))
	}
	if _, err := urlutil.CompilePatterns(j.IncludePatterns); err != nil {
		errs = append(errs, fmt.Errorf("include_patterns: %w", err))
	}
	if _, err := urlutil.CompilePatterns(j.ExcludePatterns); err != nil {
		errs = append(errs, fmt.Errorf("exclude_patterns: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidJob, errors.Join(errs...))
}

// jobPlan is a validated job with every default resolved.
type jobPlan struct {
	id              string
	projectID       string
	seeds           []string
	maxDepth        int
	maxPages        int
	userAgent       string
	timeout         time.Duration
	retries         int
	crawlDelay      time.Duration
	hasCrawlDelay   bool
	respectRobots   bool
	allowedDomains  *urlutil.DomainMatcher
	allowedPaths    []string
	include         *urlutil.PatternSet
	exclude         *urlutil.PatternSet
	headers         http.Header
	concurrency     int
	mode            FetchMode
	defaultDelay    time.Duration
	maxLinksPerPage int
	maxHTMLBytes    int
	retryPolicy     *ExponentialRetryPolicy
}

// newJobPlan validates job and resolves it against opts.
func newJobPlan(job Job, opts Options) (*jobPlan, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withFallbacks()
	include, _ := urlutil.CompilePatterns(job.IncludePatterns)
	exclude, _ := urlutil.CompilePatterns(job.ExcludePatterns)

	plan := &jobPlan{
		id:              job.ID,
		projectID:       job.ProjectID,
		maxDepth:        opts.MaxDepth,
		maxPages:        opts.MaxPages,
		userAgent:       opts.UserAgent,
		timeout:         opts.Timeout,
		retries:         opts.Retries,
		respectRobots:   opts.RespectRobots,
		allowedDomains:  urlutil.NewDomainMatcher(job.AllowedDomains),
		allowedPaths:    job.AllowedPaths,
		include:         include,
		exclude:         exclude,
		headers:         make(http.Header, len(job.Headers)),
		concurrency:     opts.Concurrency,
		mode:            opts.Mode,
		defaultDelay:    opts.CrawlDelay,
		maxLinksPerPage: opts.MaxLinksPerPage,
		maxHTMLBytes:    opts.MaxHTMLBytes,
	}
	if job.MaxDepth != nil {
		plan.maxDepth = *job.MaxDepth
	}
	if job.MaxPages > 0 {
		plan.maxPages = job.MaxPages
	}
	if strings.TrimSpace(job.UserAgent) != "" {
		plan.userAgent = job.UserAgent
	}
	if job.Timeout > 0 {
		plan.timeout = job.Timeout
	}
	if job.Retries != nil {
		plan.retries = *job.Retries
	}
	if job.CrawlDelay != nil {
		plan.crawlDelay = *job.CrawlDelay
		plan.hasCrawlDelay = true
	}
	if job.RespectRobots != nil {
		plan.respectRobots = *job.RespectRobots
	}
	if job.Concurrency > 0 {
		plan.concurrency = job.Concurrency
	}
	if job.Mode != "" {
		plan.mode = job.Mode
	}
	for k, v := range job.Headers {
		plan.headers.Set(k, v)
	}
	plan.retryPolicy = NewExponentialRetryPolicy(plan.retries+1, opts.RetryBaseDelay, opts.RetryMaxDelay)

	seen := make(map[string]struct{}, len(job.URLs))
	for _, raw := range job.URLs {
		if !urlutil.IsValidURL(raw) {
			continue
		}
		normalized := urlutil.Normalize(raw)
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		plan.seeds = append(plan.seeds, normalized)
	}
	if plan.allowedDomains == nil {
		// Without an explicit allowlist the crawl stays on the seeds' sites.
		domains := make([]string, 0, len(plan.seeds))
		for _, seed := range plan.seeds {
			domains = append(domains, urlutil.RegistrableDomain(urlutil.Hostname(seed)))
		}
		plan.allowedDomains = urlutil.NewDomainMatcher(domains)
	}
	return plan, nil
}

// admits applies discovery filtering to a normalized, absolute link found on a page at seed.
func (p *jobPlan) admits(link, seed string) bool {
	if !urlutil.IsValidURL(link) {
		return false
	}
	if !p.allowedDomains.Match(urlutil.Hostname(link)) {
		return false
	}
	if p.exclude.Match(link) {
		return false
	}
	if !p.include.Empty() && !p.include.Match(link) {
		return false
	}
	if !urlutil.IsSEOValueURL(link) {
		return false
	}
	return urlutil.GetURLDepth(link, seed) <= p.maxDepth
}
