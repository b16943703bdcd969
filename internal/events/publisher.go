// Package events delivers committed outbox events to external sinks. The
// Dispatcher reads events in sequence order and hands each to a Publisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"datamarket/pkg/domain"
)

// Publisher delivers one event to a sink. Implementations must be safe to
// call again with the same event after a failure.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Encode returns the wire form shared by every sink.
func Encode(event domain.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", event.Sequence, err)
	}
	return payload, nil
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewMemoryPublisher returns an empty in-memory sink.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.Clone())
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Event, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Clone())
	}
	return out
}

// WriterPublisher writes events as JSON lines.
type WriterPublisher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterPublisher returns a sink writing to w.
func NewWriterPublisher(w io.Writer) *WriterPublisher {
	return &WriterPublisher{w: w}
}

// Publish implements Publisher.
func (p *WriterPublisher) Publish(_ context.Context, event domain.Event) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event %d: %w", event.Sequence, err)
	}
	return nil
}

// Close releases sinks that hold connections.
func Close(p Publisher) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
