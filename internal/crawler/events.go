package crawler

import (
	"errors"
	"time"
)

// EventType names a crawl lifecycle transition.
type EventType string

// Crawl lifecycle events. crawl-finished is the single terminal event of a job.
const (
	EventCrawlStarted  EventType = "crawl-started"
	EventPageCrawled   EventType = "page-crawled"
	EventCrawlError    EventType = "crawl-error"
	EventCrawlProgress EventType = "crawl-progress"
	EventCrawlFinished EventType = "crawl-finished"
)

// Event is delivered to observers. Exactly one payload field is set for the
// event types that carry one.
type Event struct {
	Type      EventType    `json:"type"`
	JobID     string       `json:"job_id"`
	ProjectID string       `json:"project_id,omitempty"`
	Time      time.Time    `json:"ts"`
	URLs      []string     `json:"urls,omitempty"`
	Page      *CrawledPage `json:"page,omitempty"`
	Error     *CrawlError  `json:"error,omitempty"`
	Progress  *Progress    `json:"progress,omitempty"`
	Result    *Result      `json:"result,omitempty"`
}

// Validate ensures the event carries the payload its type requires.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("missing job_id")
	}
	switch e.Type {
	case EventCrawlStarted:
		return nil
	case EventPageCrawled:
		if e.Page == nil {
			return errors.New("page-crawled without page")
		}
	case EventCrawlError:
		if e.Error == nil {
			return errors.New("crawl-error without error")
		}
	case EventCrawlProgress:
		if e.Progress == nil {
			return errors.New("crawl-progress without progress")
		}
	case EventCrawlFinished:
		if e.Result == nil {
			return errors.New("crawl-finished without result")
		}
	default:
		return errors.New("unknown event type")
	}
	return nil
}
