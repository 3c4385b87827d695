// Package events is an in-process push/subscribe broker.
//
// Views subscribe to grade changes instead of polling: a finished attempt publishes an event,
// caches invalidate on it and connected clients are notified to refetch.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	AttemptFinished Kind = "attempt.finished"
	// CatalogChanged is published when subjects, periods or enrollments of a course change.
	CatalogChanged Kind = "catalog.changed"
	// UserChanged is published when a student account is updated or deleted.
	UserChanged Kind = "user.changed"
)

type Event struct {
	Kind       Kind      `json:"kind"`
	AttemptID  string    `json:"attempt_id,omitempty"`
	StudentID  string    `json:"student_id,omitempty"`
	SubjectID  string    `json:"subject_id,omitempty"`
	CourseID   string    `json:"course_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type (
	Publisher interface {
		Publish(ev Event)
	}

	Subscriber interface {
		// Subscribe returns a channel receiving every event published after the call.
		// The channel is closed once ctx is done.
		Subscribe(ctx context.Context) <-chan Event
	}

	Hooker interface {
		AddHook(h Hook)
	}
)

const DefaultBufferSize = 16

// Hook is run synchronously by Publish, before subscribers are notified.
type Hook func(ev Event)

// Broker fans events out to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Broker struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	hooks   []Hook
	buffer  int
	dropped uint64
}

var (
	_ Publisher  = (*Broker)(nil)
	_ Subscriber = (*Broker)(nil)
	_ Hooker     = (*Broker)(nil)
)

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Broker{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

// AddHook registers h to run on every published event.
func (b *Broker) AddHook(h Hook) {
	b.mu.Lock()
	b.hooks = append(b.hooks, h)
	b.mu.Unlock()
}

func (b *Broker) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	hooks := b.hooks
	b.mu.RUnlock()
	for _, h := range hooks {
		h(ev)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of events missed by slow subscribers.
func (b *Broker) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}
