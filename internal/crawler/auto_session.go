package crawler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// autoSession fetches over HTTP and re-fetches through a rendered session when
// the detector flags the page. The rendered session opens on first use.
type autoSession struct {
	http     FetchSession
	rendered FetchStrategy
	detector Detector
	logger   *zap.Logger

	mu         sync.Mutex
	browser    FetchSession
	browserErr error
}

func newAutoSession(httpSession FetchSession, rendered FetchStrategy, detector Detector, logger *zap.Logger) *autoSession {
	return &autoSession{http: httpSession, rendered: rendered, detector: detector, logger: logger}
}

func (s *autoSession) Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error) {
	resp, err := s.http.Fetch(ctx, request)
	if err != nil || s.rendered == nil || s.detector == nil {
		return resp, err
	}
	if !s.detector.NeedsJS(ctx, resp) {
		return resp, nil
	}
	browser, err := s.browserSession(ctx)
	if err != nil {
		return resp, nil
	}
	rendered, err := browser.Fetch(ctx, request)
	if err != nil {
		s.logger.Debug("rendered refetch failed; keeping http response", zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	TotalRenderEscalations.Inc()
	return rendered, nil
}

func (s *autoSession) browserSession(ctx context.Context) (FetchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil || s.browserErr != nil {
		return s.browser, s.browserErr
	}
	s.browser, s.browserErr = s.rendered.NewSession(ctx)
	if s.browserErr != nil {
		s.logger.Warn("rendered session unavailable; auto mode stays on http", zap.Error(s.browserErr))
	}
	return s.browser, s.browserErr
}

func (s *autoSession) Close() error {
	s.mu.Lock()
	browser := s.browser
	s.mu.Unlock()
	var errs []error
	if browser != nil {
		errs = append(errs, browser.Close())
	}
	errs = append(errs, s.http.Close())
	return errors.Join(errs...)
}
