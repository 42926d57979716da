package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// LogSink emits structured logs for debugging event streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []crawler.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("event", string(evt.Type)),
			zap.Time("ts", evt.Time),
		}
		if evt.ProjectID != "" {
			fields = append(fields, zap.String("project_id", evt.ProjectID))
		}
		switch {
		case evt.Page != nil:
			fields = append(fields,
				zap.String("url", evt.Page.URL),
				zap.Int("status", evt.Page.StatusCode),
				zap.Int("bytes", evt.Page.Size),
				zap.Duration("load_time", evt.Page.LoadTime),
				zap.Int("seo_score", evt.Page.SEO.SEOScore),
			)
		case evt.Error != nil:
			fields = append(fields,
				zap.String("url", evt.Error.URL),
				zap.String("kind", string(evt.Error.Kind)),
				zap.String("error", evt.Error.Message),
				zap.Int("attempts", evt.Error.Attempts),
			)
		case evt.Progress != nil:
			fields = append(fields,
				zap.Int("processed", evt.Progress.Processed),
				zap.Int("pending", evt.Progress.Pending),
				zap.Int("errors", evt.Progress.Errors),
			)
		case evt.Result != nil:
			fields = append(fields,
				zap.Bool("completed", evt.Result.Completed),
				zap.Int("pages", len(evt.Result.Pages)),
				zap.Int("errors", len(evt.Result.Errors)),
				zap.Duration("duration", evt.Result.TotalDuration),
			)
		case len(evt.URLs) > 0:
			fields = append(fields, zap.Strings("urls", evt.URLs))
		}
		s.logger.Info("crawl event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
