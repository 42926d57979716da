// Package storage selects the blob store that receives HTML snapshots and
// crawl manifests. Backends live in the memory, local and gcs subpackages.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/storage/gcs"
	"github.com/JakeFAU/seo-crawler/internal/storage/local"
	"github.com/JakeFAU/seo-crawler/internal/storage/memory"
)

// Backend names a blob store implementation.
type Backend string

// Supported blob backends.
const (
	BackendNone   Backend = "none"
	BackendMemory Backend = "memory"
	BackendLocal  Backend = "local"
	BackendGCS    Backend = "gcs"
)

// Config selects and configures a blob backend.
type Config struct {
	Backend  Backend
	LocalDir string
	Bucket   string
}

// NoOpBlobStore discards everything. Used when archiving is disabled.
type NoOpBlobStore struct{}

// PutObject drains body and returns an empty URI.
func (NoOpBlobStore) PutObject(_ context.Context, _ string, _ string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", fmt.Errorf("discard object: %w", err)
	}
	return "", nil
}

// NewBlobStore builds the configured backend. The returned close function is
// never nil.
func NewBlobStore(ctx context.Context, cfg Config, factory gcs.ClientFactory, logger *zap.Logger) (crawler.BlobStore, func() error, error) {
	noClose := func() error { return nil }
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case "", BackendNone:
		return NoOpBlobStore{}, noClose, nil
	case BackendMemory:
		return memory.NewBlobStore(), noClose, nil
	case BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, noClose, fmt.Errorf("local blob store: %w", err)
		}
		return store, noClose, nil
	case BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket}, factory, logger)
		if err != nil {
			return nil, noClose, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noClose, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
