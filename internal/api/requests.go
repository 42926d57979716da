package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

const maxRequestBody = 1 << 20

// jobRequest is the wire form of a crawl job. Durations are milliseconds.
type jobRequest struct {
	ProjectID       string            `json:"project_id"`
	URLs            []string          `json:"urls"`
	MaxDepth        *int              `json:"max_depth"`
	MaxPages        int               `json:"max_pages"`
	UserAgent       string            `json:"user_agent"`
	TimeoutMs       int64             `json:"timeout_ms"`
	Retries         *int              `json:"retries"`
	CrawlDelayMs    *int64            `json:"crawl_delay_ms"`
	RespectRobots   *bool             `json:"respect_robots"`
	AllowedDomains  []string          `json:"allowed_domains"`
	AllowedPaths    []string          `json:"allowed_paths"`
	IncludePatterns []string          `json:"include_patterns"`
	ExcludePatterns []string          `json:"exclude_patterns"`
	Headers         map[string]string `json:"headers"`
	Concurrency     int               `json:"concurrency"`
	Mode            crawler.FetchMode `json:"mode"`
}

func (r jobRequest) toJob(jobID, projectID string) crawler.Job {
	job := crawler.Job{
		ID:              jobID,
		ProjectID:       projectID,
		URLs:            r.URLs,
		MaxDepth:        r.MaxDepth,
		MaxPages:        r.MaxPages,
		UserAgent:       r.UserAgent,
		Timeout:         time.Duration(r.TimeoutMs) * time.Millisecond,
		Retries:         r.Retries,
		RespectRobots:   r.RespectRobots,
		AllowedDomains:  r.AllowedDomains,
		AllowedPaths:    r.AllowedPaths,
		IncludePatterns: r.IncludePatterns,
		ExcludePatterns: r.ExcludePatterns,
		Headers:         r.Headers,
		Concurrency:     r.Concurrency,
		Mode:            r.Mode,
	}
	if r.CrawlDelayMs != nil {
		delay := time.Duration(*r.CrawlDelayMs) * time.Millisecond
		job.CrawlDelay = &delay
	}
	return job
}

type standardJobRequest struct {
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
}

// optionsRequest is the wire form of crawler.OptionsPatch.
type optionsRequest struct {
	UserAgent       *string            `json:"user_agent"`
	TimeoutMs       *int64             `json:"timeout_ms"`
	Retries         *int               `json:"retries"`
	CrawlDelayMs    *int64             `json:"crawl_delay_ms"`
	MaxDepth        *int               `json:"max_depth"`
	MaxPages        *int               `json:"max_pages"`
	Concurrency     *int               `json:"concurrency"`
	RespectRobots   *bool              `json:"respect_robots"`
	MaxLinksPerPage *int               `json:"max_links_per_page"`
	MaxHTMLBytes    *int               `json:"max_html_bytes"`
	Mode            *crawler.FetchMode `json:"mode"`
}

func (r optionsRequest) toPatch() crawler.OptionsPatch {
	return crawler.OptionsPatch{
		UserAgent:       r.UserAgent,
		Timeout:         millis(r.TimeoutMs),
		Retries:         r.Retries,
		CrawlDelay:      millis(r.CrawlDelayMs),
		MaxDepth:        r.MaxDepth,
		MaxPages:        r.MaxPages,
		Concurrency:     r.Concurrency,
		RespectRobots:   r.RespectRobots,
		MaxLinksPerPage: r.MaxLinksPerPage,
		MaxHTMLBytes:    r.MaxHTMLBytes,
		Mode:            r.Mode,
	}
}

func millis(ms *int64) *time.Duration {
	if ms == nil {
		return nil
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d
}

// decodeJSON reads a single JSON object from the request body. An empty body
// leaves dst untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
