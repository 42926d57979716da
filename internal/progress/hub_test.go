package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(crawler.EventCrawlStarted)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Notify(sampleEvent(crawler.EventCrawlStarted))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubFlushesFinishedCrawlImmediately(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(crawler.EventCrawlStarted))
	finished := sampleEvent(crawler.EventCrawlFinished)
	finished.Result = &crawler.Result{JobID: "job-1", Completed: true}
	hub.Emit(finished)

	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestJobIDsKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	batch := []crawler.Event{{JobID: "b"}, {JobID: "a"}, {JobID: "b"}, {JobID: "c"}}
	require.Equal(t, []string{"b", "a", "c"}, jobIDs(batch))
	require.Nil(t, jobIDs(nil))
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers, even without sinks.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan crawler.Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(crawler.EventCrawlStarted))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(0), hub.dropped.Load(), "the drop counter resets once the warning is logged")
}

// TestHubBlockOnFullWaitsForSpace asserts blocking hubs deliver every event.
func TestHubBlockOnFullWaitsForSpace(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     1,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Minute,
		BlockOnFull:    true,
	}, sink)
	for i := 0; i < 20; i++ {
		hub.Emit(sampleEvent(crawler.EventCrawlStarted))
	}
	require.NoError(t, hub.Close(context.Background()))
	total := 0
	for _, batch := range sink.Batches() {
		total += len(batch)
	}
	require.Equal(t, 20, total)
}

// TestHubDiscardsInvalidEvents ensures malformed events never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)
	hub.Emit(crawler.Event{Type: crawler.EventPageCrawled, JobID: "job"})
	hub.Emit(crawler.Event{Type: crawler.EventCrawlStarted})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(crawler.EventCrawlStarted))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.closed)

	hub.Emit(sampleEvent(crawler.EventCrawlStarted))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1, "events after close are ignored")
}

// TestHubContinuesAfterSinkError checks one failing sink does not starve the others.
func TestHubContinuesAfterSinkError(t *testing.T) {
	t.Parallel()

	good := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, &failingSink{}, good)
	hub.Emit(sampleEvent(crawler.EventCrawlStarted))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, good.Batches(), 1)
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(204))
	require.Equal(t, Status3xx, ClassifyStatus(301))
	require.Equal(t, Status4xx, ClassifyStatus(404))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(0))
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]crawler.Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]crawler.Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []crawler.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]crawler.Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]crawler.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]crawler.Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]crawler.Event(nil), b...)
	}
	return out
}

type failingSink struct{}

func (failingSink) Consume(context.Context, []crawler.Event) error { return errors.New("boom") }

func (failingSink) Close(context.Context) error { return errors.New("close boom") }

func sampleEvent(eventType crawler.EventType) crawler.Event {
	return crawler.Event{
		Type:  eventType,
		JobID: "job-1",
		Time:  time.Now(),
		URLs:  []string{"https://example.com/"},
	}
}
