// Package feed carries approval events to streaming consumers without
// blocking the orchestration path.
package feed

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity 默认缓冲大小, 足够一个慢速 websocket 消费者追赶。
const DefaultCapacity = 256

// Feed is a bounded event buffer with drop-oldest overflow. Publish
// never blocks: when the buffer is full the oldest event is discarded,
// so a stalled consumer sees a gap in the stream instead of stalling
// approvals behind it.
type Feed[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// New builds a feed with the given capacity; capacity <= 0 uses the
// default.
func New[T any](capacity int) *Feed[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed[T]{ch: make(chan T, capacity)}
}

// Publish appends an event, discarding the oldest buffered event when
// the feed is full. Publishing to a closed feed is a no-op.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	for {
		select {
		case f.ch <- v:
			f.published.Add(1)
			return
		default:
		}
		select {
		case <-f.ch:
			f.dropped.Add(1)
		default:
		}
	}
}

// Chan exposes the feed for select-based consumers. The channel is
// closed by Close.
func (f *Feed[T]) Chan() <-chan T {
	return f.ch
}

// Len reports how many events are currently buffered.
func (f *Feed[T]) Len() int {
	return len(f.ch)
}

// Stats are cumulative feed counters.
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Buffered  int   `json:"buffered"`
}

func (f *Feed[T]) Stats() Stats {
	return Stats{
		Published: f.published.Load(),
		Dropped:   f.dropped.Load(),
		Buffered:  len(f.ch),
	}
}

// Close ends the stream; consumers observe the channel closing once the
// buffer drains.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
