package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := NewWithConfig(2, 10)
	defer b.Close(context.Background())

	var mu sync.Mutex
	var got []Event
	b.Subscribe(EventTypeSnapshot, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	b.Subscribe(EventTypeAction, func(e Event) {
		t.Errorf("action handler received %v", e.Type)
	})

	b.Publish(Event{Type: EventTypeSnapshot, Resource: "rooms", Data: 1})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "rooms", got[0].Resource)
	assert.False(t, got[0].Time.IsZero())
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	b := NewWithConfig(1, 1)
	defer b.Close(context.Background())

	block := make(chan struct{})
	b.Subscribe(EventTypeAction, func(Event) { <-block })

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: EventTypeAction})
	}
	close(block)

	stats := b.Stats()
	assert.Equal(t, uint64(5), stats.Published)
	assert.GreaterOrEqual(t, stats.Dropped, uint64(3))
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer b.Close(context.Background())

	done := make(chan struct{})
	calls := 0
	b.Subscribe(EventTypeSnapshot, func(Event) {
		calls++
		if calls == 1 {
			panic("handler bug")
		}
		close(done)
	})

	b.Publish(Event{Type: EventTypeSnapshot})
	b.Publish(Event{Type: EventTypeSnapshot})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New()
	b.Subscribe(EventTypeSnapshot, func(Event) {})

	b.Close(context.Background())
	b.Close(context.Background())

	assert.NotPanics(t, func() { b.Publish(Event{Type: EventTypeSnapshot}) })
	assert.Equal(t, uint64(1), b.Stats().Dropped)
}
