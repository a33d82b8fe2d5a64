// Package eventbus fans panel events (poll snapshots, applied actions) out to
// in-process consumers through a bounded worker pool.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeSnapshot carries a poller.View after every state change
	EventTypeSnapshot EventType = "snapshot"
	// EventTypeAction carries a control.Outcome after every mutation
	EventTypeAction EventType = "action"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
)

// Event represents an event in the system
type Event struct {
	Type     EventType
	Resource string
	Data     any
	Time     time.Time
}

// Handler is a function that handles events
type Handler func(Event)

// Stats are cumulative bus counters
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool.
// Handlers for the same event type may run concurrently.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	workQueue chan work
	wg        sync.WaitGroup

	// Closing this channel signals publishers to stop
	closing   chan struct{}
	closeOnce sync.Once

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
		closing:   make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Str("resource", w.event.Resource).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish queues the event for every handler of its type.
// Non-blocking: events are dropped when the queue is full or the bus is closing.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	// Held for the whole fan-out so Close cannot close the queue under a send
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := b.handlers[event.Type]

	b.published.Add(1)

	for _, handler := range handlers {
		select {
		case <-b.closing:
			b.dropped.Add(1)
			log.Debug().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
			return
		default:
		}

		select {
		case b.workQueue <- work{event: event, handler: handler}:
		default:
			b.dropped.Add(1)
			log.Warn().
				Str("event_type", string(event.Type)).
				Str("resource", event.Resource).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Stats returns cumulative counters
func (b *Bus) Stats() Stats {
	return Stats{Published: b.published.Load(), Dropped: b.dropped.Load()}
}

// Close shuts down the worker pool gracefully.
// Publishers are signalled first, then the queue is drained until ctx expires.
func (b *Bus) Close(ctx context.Context) {
	first := false
	b.closeOnce.Do(func() {
		close(b.closing)
		first = true
	})
	if !first {
		return
	}

	// Waits for in-flight Publish calls
	b.mu.Lock()
	close(b.workQueue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
