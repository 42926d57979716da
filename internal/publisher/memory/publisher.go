// Package memory contains an in-memory publisher for development and tests.
// It is the fallback announcement channel when Pub/Sub is not configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultLimit is how many recent messages a Publisher retains.
const DefaultLimit = 1000

// PublishedMessage captures one publish call. Data is the JSON encoding a
// broker would have received.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
	Data    []byte
}

// Publisher keeps the most recent messages in memory.
type Publisher struct {
	mu       sync.RWMutex
	limit    int
	seq      int
	messages []PublishedMessage
	failNext error
}

// New returns a Publisher retaining DefaultLimit messages.
func New() *Publisher {
	return NewWithLimit(DefaultLimit)
}

// NewWithLimit returns a Publisher retaining at most limit messages; older
// ones are evicted first.
func NewWithLimit(limit int) *Publisher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Publisher{limit: limit}
}

// Publish encodes payload the way a real broker client would and records it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failNext; err != nil {
		p.failNext = nil
		return "", err
	}
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload, Data: data})
	if over := len(p.messages) - p.limit; over > 0 {
		p.messages = append(p.messages[:0:0], p.messages[over:]...)
	}
	return id, nil
}

// FailNext makes the next Publish call return err.
func (p *Publisher) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

// Messages returns the retained messages, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
