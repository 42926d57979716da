package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// ArchiveSink writes page HTML snapshots and a per-job result document to a
// blob store. Snapshots are content addressed so identical pages share a key.
type ArchiveSink struct {
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger

	mu   sync.Mutex
	uris map[string]map[string]string
}

// ArchiveManifest is the result document stored next to the page snapshots.
type ArchiveManifest struct {
	JobID     string               `json:"job_id"`
	ProjectID string               `json:"project_id,omitempty"`
	Completed bool                 `json:"completed"`
	Stats     crawler.Stats        `json:"stats"`
	Errors    []crawler.CrawlError `json:"errors"`
	Pages     map[string]string    `json:"pages"`
}

// NewArchiveSink builds an ArchiveSink; prefix is prepended to every object path.
func NewArchiveSink(blobs crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{
		blobs:  blobs,
		hasher: hasher,
		prefix: prefix,
		logger: logger,
		uris:   make(map[string]map[string]string),
	}
}

// Consume archives pages with HTML and writes the manifest when a job finishes.
func (s *ArchiveSink) Consume(ctx context.Context, batch []crawler.Event) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Type {
		case crawler.EventPageCrawled:
			if err := s.archivePage(ctx, evt.JobID, evt.Page); err != nil {
				return err
			}
		case crawler.EventCrawlFinished:
			if err := s.writeManifest(ctx, evt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ArchiveSink) archivePage(ctx context.Context, jobID string, page *crawler.CrawledPage) error {
	if page.HTML == "" {
		return nil
	}
	body := []byte(page.HTML)
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return fmt.Errorf("hash page %s: %w", page.URL, err)
	}
	objectPath := path.Join(s.prefix, "pages", jobID, digest+".html")
	uri, err := s.blobs.PutObject(ctx, objectPath, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("archive page %s: %w", page.URL, err)
	}
	s.mu.Lock()
	if s.uris[jobID] == nil {
		s.uris[jobID] = make(map[string]string)
	}
	s.uris[jobID][page.URL] = uri
	s.mu.Unlock()
	return nil
}

func (s *ArchiveSink) writeManifest(ctx context.Context, evt crawler.Event) error {
	s.mu.Lock()
	pages := s.uris[evt.JobID]
	delete(s.uris, evt.JobID)
	s.mu.Unlock()
	if pages == nil {
		pages = map[string]string{}
	}
	manifest := ArchiveManifest{
		JobID:     evt.JobID,
		ProjectID: evt.ProjectID,
		Completed: evt.Result.Completed,
		Stats:     evt.Result.Stats,
		Errors:    evt.Result.Errors,
		Pages:     pages,
	}
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	objectPath := path.Join(s.prefix, "jobs", evt.JobID, "manifest.json")
	uri, err := s.blobs.PutObject(ctx, objectPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	s.logger.Info("crawl archived", zap.String("job_id", evt.JobID), zap.String("manifest", uri), zap.Int("pages", len(pages)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
