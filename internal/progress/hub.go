package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// Config controls how crawl events are buffered before they reach the sinks.
// A batch is flushed when it holds MaxBatchEvents events, when MaxBatchWait
// has passed since its first event, or as soon as a crawl-finished event
// arrives so job status lands without waiting for the timer.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	BlockOnFull    bool
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub buffers crawl events from the engine and delivers them in batches to
// every sink. Notify and Emit are safe for concurrent use. Unless BlockOnFull
// is set a full buffer drops events rather than stalling the crawl.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan crawler.Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropLog *rate.Sometimes
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the delivery goroutine for sinks and returns the Hub.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		events:  make(chan crawler.Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: &rate.Sometimes{First: 1, Interval: dropLogInterval},
	}
	for _, sink := range sinks {
		if sink != nil {
			h.sinks = append(h.sinks, sink)
		}
	}
	go h.run()
	return h
}

// Notify implements crawler.Observer.
func (h *Hub) Notify(evt crawler.Event) {
	h.Emit(evt)
}

// Emit queues evt for delivery. Malformed events and events emitted after
// Close are discarded.
func (h *Hub) Emit(evt crawler.Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid crawl event", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	if h.cfg.BlockOnFull {
		select {
		case h.events <- evt:
		case <-h.stopCh:
		}
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("crawl events dropped, event buffer full",
				zap.Int64("dropped", h.dropped.Swap(0)),
				zap.Int("buffer_size", h.cfg.BufferSize),
			)
		})
	}
}

// Close stops intake, delivers every buffered event, closes the sinks and
// waits for delivery to finish or ctx to end. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event hub close wait: %w", ctx.Err())
	}
}

// pending is the batch under construction and the deadline timer armed by
// its first event.
type pending struct {
	events []crawler.Event
	timer  *time.Timer
}

// due returns the timer channel, or nil while the batch is empty.
func (p *pending) due() <-chan time.Time {
	if p.timer == nil {
		return nil
	}
	return p.timer.C
}

func (p *pending) add(evt crawler.Event, wait time.Duration) {
	if len(p.events) == 0 {
		p.timer = time.NewTimer(wait)
	}
	p.events = append(p.events, evt)
}

// take hands over the batch and disarms the timer.
func (p *pending) take() []crawler.Event {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	batch := p.events
	p.events = nil
	return batch
}

func (h *Hub) run() {
	defer close(h.doneCh)
	var batch pending
	for {
		select {
		case evt := <-h.events:
			batch.add(evt, h.cfg.MaxBatchWait)
			if len(batch.events) >= h.cfg.MaxBatchEvents || evt.Type == crawler.EventCrawlFinished {
				h.deliver(batch.take())
			}
		case <-batch.due():
			h.deliver(batch.take())
		case <-h.stopCh:
			h.drain(&batch)
			h.closeSinks()
			return
		}
	}
}

// drain delivers whatever is still queued once intake has stopped.
func (h *Hub) drain(batch *pending) {
	for {
		select {
		case evt := <-h.events:
			batch.add(evt, h.cfg.MaxBatchWait)
			if len(batch.events) >= h.cfg.MaxBatchEvents {
				h.deliver(batch.take())
			}
		default:
			h.deliver(batch.take())
			return
		}
	}
}

// deliver hands batch to every sink, each under its own timeout. A failing
// sink is logged with the jobs it lost and does not stop the others.
func (h *Hub) deliver(batch []crawler.Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		err := sink.Consume(ctx, batch)
		cancel()
		if err != nil {
			h.logger.Warn("crawl event sink failed",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Strings("jobs", jobIDs(batch)),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("crawl event sink close failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
}

// jobIDs lists the distinct job IDs in batch in first-seen order.
func jobIDs(batch []crawler.Event) []string {
	seen := make(map[string]struct{}, 1)
	var ids []string
	for _, evt := range batch {
		if _, ok := seen[evt.JobID]; ok {
			continue
		}
		seen[evt.JobID] = struct{}{}
		ids = append(ids, evt.JobID)
	}
	return ids
}
