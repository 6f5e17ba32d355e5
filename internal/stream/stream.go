package stream

import (
	"context"
	"sync"
	"time"
)

// OperationEvent describes a maintenance operation status change pushed to
// subscribers. Push is an optimization on top of the polling contract, not a
// delivery guarantee.
type OperationEvent struct {
	OperationID    string    `json:"operation_id"`
	Kind           string    `json:"kind"`
	TargetTenantID string    `json:"target_tenant_id,omitempty"`
	Status         string    `json:"status"`
	At             time.Time `json:"at"`
}

// Stream fan-outs operation events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan OperationEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan OperationEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan OperationEvent {
	ch := make(chan OperationEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt OperationEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
