package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// CrawlFinishedMessage is the Pub/Sub payload announcing a finished crawl.
type CrawlFinishedMessage struct {
	JobID       string        `json:"job_id"`
	ProjectID   string        `json:"project_id,omitempty"`
	Completed   bool          `json:"completed"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Stats       crawler.Stats `json:"stats"`
	PageCount   int           `json:"page_count"`
	ErrorCount  int           `json:"error_count"`
	PublishedAt time.Time     `json:"published_at"`
}

// PublishSink announces finished crawls on a topic so downstream systems can
// pick up results without polling the API.
type PublishSink struct {
	publisher crawler.Publisher
	topic     string
	clock     crawler.Clock
	logger    *zap.Logger
}

// NewPublishSink builds a PublishSink for topic.
func NewPublishSink(publisher crawler.Publisher, topic string, clock crawler.Clock, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, clock: clock, logger: logger}
}

// Consume publishes one message per crawl-finished event.
func (s *PublishSink) Consume(ctx context.Context, batch []crawler.Event) error {
	if s == nil || s.publisher == nil || s.topic == "" {
		return nil
	}
	for _, evt := range batch {
		if evt.Type != crawler.EventCrawlFinished {
			continue
		}
		msg := CrawlFinishedMessage{
			JobID:      evt.JobID,
			ProjectID:  evt.ProjectID,
			Completed:  evt.Result.Completed,
			StartTime:  evt.Result.StartTime,
			EndTime:    evt.Result.EndTime,
			Stats:      evt.Result.Stats,
			PageCount:  len(evt.Result.Pages),
			ErrorCount: len(evt.Result.Errors),
		}
		if s.clock != nil {
			msg.PublishedAt = s.clock.Now()
		} else {
			msg.PublishedAt = time.Now().UTC()
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			return fmt.Errorf("publish crawl finished %s: %w", evt.JobID, err)
		}
		s.logger.Debug("crawl finished published", zap.String("job_id", evt.JobID), zap.String("message_id", id))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
