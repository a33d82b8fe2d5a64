package poller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/homepanel/internal/backend"
)

const waitFor = 2 * time.Second

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type tickers struct {
	mu        sync.Mutex
	created   []*fakeTicker
	intervals []time.Duration
}

func (ts *tickers) new(d time.Duration) ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ft := &fakeTicker{ch: make(chan time.Time)}
	ts.created = append(ts.created, ft)
	ts.intervals = append(ts.intervals, d)
	return ft
}

func (ts *tickers) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.created)
}

func (ts *tickers) last() *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.created[len(ts.created)-1]
}

func (ts *tickers) tick(t *testing.T) {
	t.Helper()
	select {
	case ts.last().ch <- time.Now():
	case <-time.After(waitFor):
		t.Fatal("ticker not consumed")
	}
}

type result struct {
	data []string
	err  error
}

type call struct {
	reply chan result
}

// script hands every fetch to the test, which decides when and how it resolves
type script struct {
	calls chan call
}

func newScript() *script {
	return &script{calls: make(chan call, 16)}
}

func (s *script) fetch(ctx context.Context) ([]string, error) {
	c := call{reply: make(chan result, 1)}
	s.calls <- c
	select {
	case r := <-c.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *script) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(waitFor):
		t.Fatal("expected a fetch")
		return call{}
	}
}

func (s *script) none(t *testing.T) {
	t.Helper()
	select {
	case <-s.calls:
		t.Fatal("unexpected fetch")
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestPoller(t *testing.T, fetch Fetcher[[]string], interval time.Duration) (*Poller[[]string], *tickers) {
	t.Helper()
	ts := &tickers{}
	p := New("rooms", fetch, interval)
	p.newTicker = ts.new
	t.Cleanup(p.Stop)
	return p, ts
}

func waitSnapshot(t *testing.T, p *Poller[[]string], cond func(Snapshot[[]string]) bool) Snapshot[[]string] {
	t.Helper()
	require.Eventually(t, func() bool { return cond(p.Snapshot()) }, waitFor, 5*time.Millisecond)
	return p.Snapshot()
}

func settled(s Snapshot[[]string]) bool { return !s.Loading && s.Seq > 0 }

func TestStartFetchesImmediately(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, 5*time.Second)

	require.NoError(t, p.Start(context.Background()))

	snap := p.Snapshot()
	assert.True(t, snap.Loading)
	assert.Equal(t, StateLoading, snap.State)
	assert.False(t, snap.HasData)
	assert.Nil(t, snap.Err)

	s.next(t).reply <- result{data: []string{"Room A", "Room B"}}

	snap = waitSnapshot(t, p, settled)
	assert.Equal(t, []string{"Room A", "Room B"}, snap.Data)
	assert.True(t, snap.HasData)
	assert.Nil(t, snap.Err)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, []time.Duration{5 * time.Second}, ts.intervals)
}

func TestTicksFetchAgainRegardlessOfState(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))

	s.next(t).reply <- result{err: errors.New("down")}
	waitSnapshot(t, p, settled)
	s.none(t)

	ts.tick(t)
	s.next(t).reply <- result{data: []string{"Room A"}}
	snap := waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 2 && !s.Loading })
	assert.Equal(t, StateReady, snap.State)

	ts.tick(t)
	s.next(t).reply <- result{data: []string{"Room A", "Room B"}}
	snap = waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 3 && !s.Loading })
	assert.Equal(t, []string{"Room A", "Room B"}, snap.Data)
}

func TestRefetchDoesNotResetSchedule(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))
	s.next(t).reply <- result{data: []string{"a"}}
	waitSnapshot(t, p, settled)

	p.Refetch()
	assert.True(t, p.Snapshot().Loading)
	s.next(t).reply <- result{data: []string{"b"}}
	waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 2 && !s.Loading })

	// Same ticker keeps driving the loop
	assert.Equal(t, 1, ts.count())
	ts.tick(t)
	s.next(t).reply <- result{data: []string{"c"}}
	snap := waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 3 && !s.Loading })
	assert.Equal(t, []string{"c"}, snap.Data)
	assert.False(t, ts.last().stopped.Load())
}

func TestFailureKeepsPreviousData(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))

	s.next(t).reply <- result{data: []string{"Room A"}}
	waitSnapshot(t, p, settled)

	boom := &backend.Error{Kind: backend.KindStatus, Status: http.StatusInternalServerError, Message: "boom"}
	ts.tick(t)
	s.next(t).reply <- result{err: boom}

	snap := waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 2 && !s.Loading })
	assert.Equal(t, StateFailed, snap.State)
	assert.Same(t, boom, snap.Err)
	assert.True(t, snap.HasData)
	assert.Equal(t, []string{"Room A"}, snap.Data)

	// A later success clears the error
	p.Refetch()
	s.next(t).reply <- result{data: []string{"Room B"}}
	snap = waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 3 && !s.Loading })
	assert.Nil(t, snap.Err)
	assert.Equal(t, StateReady, snap.State)
}

func TestFailureBeforeFirstSuccess(t *testing.T) {
	s := newScript()
	p, _ := newTestPoller(t, s.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))

	s.next(t).reply <- result{err: &backend.Error{Kind: backend.KindStatus, Status: 500, StatusText: "Internal Server Error", Message: "boom"}}
	snap := waitSnapshot(t, p, settled)
	assert.False(t, snap.HasData)
	assert.Nil(t, snap.Data)

	v := p.View()
	assert.Equal(t, "rooms", v.Name)
	assert.Nil(t, v.Data)
	assert.False(t, v.Loading)
	require.NotNil(t, v.Error)
	assert.Equal(t, 500, v.Error.Status)
	assert.Equal(t, "boom", v.Error.Message)
	assert.Equal(t, backend.KindStatus, v.Error.Kind)
}

func TestStaleResultIsDiscarded(t *testing.T) {
	s := newScript()
	p, _ := newTestPoller(t, s.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))

	slow := s.next(t)
	p.Refetch()
	fast := s.next(t)

	fast.reply <- result{data: []string{"new"}}
	snap := waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 2 })
	assert.True(t, snap.Loading, "first fetch is still in flight")
	assert.Equal(t, []string{"new"}, snap.Data)

	slow.reply <- result{data: []string{"old"}}
	snap = waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return !s.Loading })
	assert.Equal(t, []string{"new"}, snap.Data)
	assert.Equal(t, uint64(2), snap.Seq)
	assert.Equal(t, StateReady, snap.State)
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	s := newScript()
	p, _ := newTestPoller(t, s.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))

	slow := s.next(t)
	p.Refetch()
	s.next(t).reply <- result{data: []string{"ok"}}
	waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 2 })

	slow.reply <- result{err: errors.New("late failure")}
	snap := waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return !s.Loading })
	assert.Nil(t, snap.Err)
	assert.Equal(t, StateReady, snap.State)
}

func TestStopDiscardsLateResults(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"late"}, nil
	}

	p, ts := newTestPoller(t, fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, 5*time.Millisecond)

	updates, cancel := p.Subscribe()
	defer cancel()
	<-updates // current snapshot

	p.Stop()
	before := p.Snapshot()
	assert.False(t, p.Running())
	assert.True(t, ts.last().stopped.Load())

	close(release)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, p.Snapshot())
	assert.False(t, p.Snapshot().HasData)
	select {
	case snap := <-updates:
		t.Fatalf("unexpected update after stop: %+v", snap)
	default:
	}

	p.Refetch()
	assert.Equal(t, int32(1), calls.Load(), "refetch on a stopped poller is a no-op")
}

func TestStopCancelsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	fetch := func(ctx context.Context) ([]string, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}

	p, _ := newTestPoller(t, fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))
	<-started
	p.Stop()

	select {
	case <-cancelled:
	case <-time.After(waitFor):
		t.Fatal("fetch context was not cancelled")
	}
	assert.Nil(t, p.Snapshot().Err)
}

func TestParentContextStopsLoop(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	c := s.next(t)
	cancel()

	require.Eventually(t, func() bool { return ts.last().stopped.Load() }, waitFor, 5*time.Millisecond)
	assert.False(t, p.Running())

	c.reply <- result{data: []string{"late"}}
	time.Sleep(50 * time.Millisecond)
	assert.False(t, p.Snapshot().HasData)
}

func TestParentContextReleasesPoller(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	s.next(t).reply <- result{data: []string{"first"}}
	waitSnapshot(t, p, settled)

	ts.tick(t)
	s.next(t)
	require.True(t, p.Snapshot().Loading)
	cancel()

	snap := waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return !s.Loading })
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, []string{"first"}, snap.Data)

	require.NoError(t, p.Start(context.Background()))
	s.next(t).reply <- result{data: []string{"second"}}
	snap = waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 3 && !s.Loading })
	assert.Equal(t, []string{"second"}, snap.Data)
	assert.True(t, p.Running())
}

func TestStartTwice(t *testing.T) {
	s := newScript()
	p, _ := newTestPoller(t, s.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
}

func TestRestartAfterStop(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, time.Second)

	require.NoError(t, p.Start(context.Background()))
	s.next(t).reply <- result{data: []string{"first"}}
	waitSnapshot(t, p, settled)
	p.Stop()

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, 2, ts.count())
	s.next(t).reply <- result{data: []string{"second"}}
	snap := waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.Seq == 2 && !s.Loading })
	assert.Equal(t, []string{"second"}, snap.Data)
}

func TestReconfigureRestartsLoop(t *testing.T) {
	oldScript := newScript()
	p, ts := newTestPoller(t, oldScript.fetch, time.Second)
	require.NoError(t, p.Start(context.Background()))
	pending := oldScript.next(t)

	fresh := newScript()
	p.Reconfigure(fresh.fetch, 2*time.Second)

	assert.Equal(t, 2, ts.count())
	assert.True(t, ts.created[0].stopped.Load())
	assert.Equal(t, 2*time.Second, p.Interval())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, ts.intervals)

	fresh.next(t).reply <- result{data: []string{"fresh"}}
	waitSnapshot(t, p, func(s Snapshot[[]string]) bool { return s.HasData })

	// The old loop's in-flight fetch was cancelled and its result is ignored
	pending.reply <- result{data: []string{"stale"}}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"fresh"}, p.Snapshot().Data)

	ts.tick(t)
	fresh.next(t)
	oldScript.none(t)
}

func TestReconfigureStoppedOnlyStoresSettings(t *testing.T) {
	s := newScript()
	p, ts := newTestPoller(t, s.fetch, time.Second)
	p.Reconfigure(nil, 0)

	assert.Equal(t, DefaultInterval, p.Interval())
	assert.Equal(t, 0, ts.count())
	s.none(t)
}

func TestPanickingFetchBecomesError(t *testing.T) {
	p, _ := newTestPoller(t, func(ctx context.Context) ([]string, error) {
		panic("kaboom")
	}, time.Second)
	require.NoError(t, p.Start(context.Background()))

	snap := waitSnapshot(t, p, settled)
	require.Error(t, snap.Err)
	assert.Contains(t, snap.Err.Error(), "kaboom")
	assert.Equal(t, StateFailed, snap.State)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	s := newScript()
	p, _ := newTestPoller(t, s.fetch, time.Second)

	updates, cancel := p.Subscribe()
	initial := <-updates
	assert.Equal(t, StateIdle, initial.State)

	require.NoError(t, p.Start(context.Background()))
	c := s.next(t)
	loading := <-updates
	assert.True(t, loading.Loading)

	c.reply <- result{data: []string{"Room A"}}
	select {
	case snap := <-updates:
		assert.Equal(t, StateReady, snap.State)
		assert.Equal(t, []string{"Room A"}, snap.Data)
	case <-time.After(waitFor):
		t.Fatal("no update after fetch")
	}

	cancel()
	_, open := <-updates
	assert.False(t, open)
	cancel()
}

func TestWatchConvertsToViews(t *testing.T) {
	s := newScript()
	p, _ := newTestPoller(t, s.fetch, time.Second)
	views, cancel := p.Watch()
	defer cancel()

	require.NoError(t, p.Start(context.Background()))
	s.next(t).reply <- result{data: []string{"Room A"}}

	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return v.State == StateReady && v.Resolved()
		default:
			return false
		}
	}, waitFor, 5*time.Millisecond)
}

func TestDefaultInterval(t *testing.T) {
	p := New[int]("x", func(context.Context) (int, error) { return 0, nil }, 0)
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.Equal(t, 5*time.Second, DefaultInterval)
}

func TestRealTickerSchedule(t *testing.T) {
	var calls atomic.Int32
	p := New("rooms", func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"Room A"}, nil
	}, 20*time.Millisecond)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, waitFor, 5*time.Millisecond)
}
