package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// ErrUnavailable is returned when rendering is disabled in configuration.
var ErrUnavailable = errors.New("headless fetcher not configured")

// Noop is the rendered strategy used when Chrome is disabled. Opening a
// session always fails, which makes the engine fall back to plain HTTP.
type Noop struct{}

// NewNoop creates a new Noop strategy.
func NewNoop() *Noop {
	return &Noop{}
}

// Mode implements crawler.FetchStrategy.
func (Noop) Mode() crawler.FetchMode {
	return crawler.FetchModeRendered
}

// NewSession implements crawler.FetchStrategy.
func (Noop) NewSession(context.Context) (crawler.FetchSession, error) {
	return nil, ErrUnavailable
}
