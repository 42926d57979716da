package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// CrawlStore provides an in-memory crawler.CrawlStore for development/testing.
type CrawlStore struct {
	mu     sync.RWMutex
	jobs   map[string]crawler.JobRecord
	pages  map[string][]crawler.PageRecord
	errors map[string][]crawler.ErrorRecord
}

// NewCrawlStore constructs a CrawlStore.
func NewCrawlStore() *CrawlStore {
	return &CrawlStore{
		jobs:   make(map[string]crawler.JobRecord),
		pages:  make(map[string][]crawler.PageRecord),
		errors: make(map[string][]crawler.ErrorRecord),
	}
}

// CreateJob stores a new job row.
func (s *CrawlStore) CreateJob(_ context.Context, job crawler.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, crawler.ErrAlreadyExists)
	}
	job.URLs = append([]string(nil), job.URLs...)
	s.jobs[job.ID] = job
	return nil
}

// StartJob moves a job to running and stamps its start time once. A job that
// already reached a terminal status keeps it.
func (s *CrawlStore) StartJob(_ context.Context, jobID string, started time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	if !isTerminal(job.Status) {
		job.Status = crawler.JobStatusRunning
	}
	if job.Started == nil {
		job.Started = pointerTime(started)
	}
	s.jobs[jobID] = job
	return nil
}

// SavePage appends a page row for a job.
func (s *CrawlStore) SavePage(_ context.Context, page crawler.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.JobID] = append(s.pages[page.JobID], page)
	return nil
}

// SaveError appends an error row for a job.
func (s *CrawlStore) SaveError(_ context.Context, record crawler.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[record.JobID] = append(s.errors[record.JobID], record)
	return nil
}

// FinishJob records the terminal status and aggregate stats.
func (s *CrawlStore) FinishJob(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	finished time.Time,
	stats crawler.Stats,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	job.Status = status
	job.Stats = stats
	if isTerminal(status) {
		job.Finished = pointerTime(finished)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *CrawlStore) GetJob(_ context.Context, jobID string) (crawler.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.JobRecord{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return job, nil
}

// ListPages returns all recorded pages for a job.
func (s *CrawlStore) ListPages(_ context.Context, jobID string) ([]crawler.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := s.pages[jobID]
	out := make([]crawler.PageRecord, len(pages))
	copy(out, pages)
	return out, nil
}

// ListErrors returns all recorded crawl errors for a job.
func (s *CrawlStore) ListErrors(_ context.Context, jobID string) ([]crawler.ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.errors[jobID]
	out := make([]crawler.ErrorRecord, len(records))
	copy(out, records)
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status crawler.JobStatus) bool {
	switch status {
	case crawler.JobStatusSucceeded, crawler.JobStatusFailed, crawler.JobStatusCanceled:
		return true
	default:
		return false
	}
}
