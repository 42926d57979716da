package crawler

import "time"

// JobStatus represents the lifecycle state of a persisted crawl job.
type JobStatus string

// Job status values persisted in the crawl store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// JobRecord is the persisted view of a crawl job.
type JobRecord struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id,omitempty"`
	Status    JobStatus  `json:"status"`
	URLs      []string   `json:"urls"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Stats     Stats      `json:"stats"`
}

// PageRecord is persisted for each crawled page.
type PageRecord struct {
	JobID              string    `json:"job_id"`
	URL                string    `json:"url"`
	Title              string    `json:"title"`
	StatusCode         int       `json:"status_code"`
	ContentType        string    `json:"content_type"`
	SizeBytes          int       `json:"size_bytes"`
	LoadTimeMs         int64     `json:"load_time_ms"`
	Depth              int       `json:"depth"`
	Rendered           bool      `json:"rendered"`
	CrawledAt          time.Time `json:"crawled_at"`
	SEOScore           int       `json:"seo_score"`
	PerformanceScore   int       `json:"performance_score"`
	AccessibilityScore int       `json:"accessibility_score"`
	LinkCount          int       `json:"link_count"`
	Audit              SEOAudit  `json:"audit"`
}

// ErrorRecord is persisted for each crawl error.
type ErrorRecord struct {
	JobID string `json:"job_id"`
	CrawlError
}

// NewPageRecord flattens a crawled page for persistence.
func NewPageRecord(jobID string, page CrawledPage) PageRecord {
	return PageRecord{
		JobID:              jobID,
		URL:                page.URL,
		Title:              page.Title,
		StatusCode:         page.StatusCode,
		ContentType:        page.ContentType,
		SizeBytes:          page.Size,
		LoadTimeMs:         page.LoadTime.Milliseconds(),
		Depth:              page.Depth,
		Rendered:           page.Rendered,
		CrawledAt:          page.CrawledAt,
		SEOScore:           page.SEO.SEOScore,
		PerformanceScore:   page.SEO.PerformanceScore,
		AccessibilityScore: page.SEO.AccessibilityScore,
		LinkCount:          len(page.Links),
		Audit:              page.SEO,
	}
}
