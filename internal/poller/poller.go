// Package poller keeps a continuously refreshed view of one backend resource.
//
// A Poller fetches immediately when started and then on a fixed ticker, independent of
// how long each fetch takes. Fetches may overlap; every attempt carries a sequence number
// and a resolution older than the one already applied is discarded. Failures never escape:
// they are stored in the snapshot next to the last good data.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is used when a non-positive interval is given
const DefaultInterval = 5 * time.Second

// ErrAlreadyStarted is returned by Start on a running poller
var ErrAlreadyStarted = errors.New("poller already started")

// Fetcher produces the latest value of a resource
type Fetcher[T any] func(ctx context.Context) (T, error)

// Snapshot is the state of a poller at one point in time
type Snapshot[T any] struct {
	Data      T
	HasData   bool  // false until the first successful fetch
	Err       error // last failure, nil after a success
	Loading   bool  // a fetch is in flight
	State     State
	Seq       uint64 // sequence number of the applied result
	UpdatedAt time.Time
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

func newTimeTicker(d time.Duration) ticker { return timeTicker{time.NewTicker(d)} }

// run is one active polling loop; replaced on Reconfigure, cleared on Stop
type run struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller polls one resource. State is owned by the instance and never shared.
type Poller[T any] struct {
	name      string
	newTicker func(time.Duration) ticker

	mu       sync.Mutex
	fetch    Fetcher[T]
	interval time.Duration
	snap     Snapshot[T]
	issued   uint64
	inflight map[uint64]struct{}
	run      *run
	subs     map[int]chan Snapshot[T]
	nextSub  int
}

// New creates a stopped poller
func New[T any](name string, fetch Fetcher[T], interval time.Duration) *Poller[T] {
	return &Poller[T]{
		name:      name,
		newTicker: newTimeTicker,
		fetch:     fetch,
		interval:  normalizeInterval(interval),
		inflight:  make(map[uint64]struct{}),
		subs:      make(map[int]chan Snapshot[T]),
	}
}

func normalizeInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return d
}

// Name returns the poller name
func (p *Poller[T]) Name() string {
	return p.name
}

// Interval returns the current tick interval
func (p *Poller[T]) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Running reports whether a loop is active
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil && p.run.ctx.Err() == nil
}

// Start fetches immediately and then on every tick until Stop or ctx is done.
func (p *Poller[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		return ErrAlreadyStarted
	}
	p.startLocked(ctx)
	return nil
}

func (p *Poller[T]) startLocked(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r := &run{
		parent: parent,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.run = r
	p.inflight = make(map[uint64]struct{})

	log.Debug().Str("poller", p.name).Dur("interval", p.interval).Msg("Poller started")

	p.launchLocked(r)
	go p.loop(r, p.newTicker(p.interval))
}

// Stop cancels the loop and any in-flight fetch. Results that arrive later are
// discarded and subscribers receive nothing further until the next Start.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	r := p.run
	if r == nil {
		p.mu.Unlock()
		return
	}
	p.releaseLocked()
	p.mu.Unlock()

	r.cancel()
	<-r.done

	log.Debug().Str("poller", p.name).Msg("Poller stopped")
}

// Refetch starts an out-of-band fetch now. The tick schedule is not affected.
// It is a no-op on a stopped poller.
func (p *Poller[T]) Refetch() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run == nil || p.run.ctx.Err() != nil {
		return
	}
	p.launchLocked(p.run)
}

// Reconfigure swaps the fetcher and/or interval. A running loop is torn down and a
// new one started with an immediate fetch; the last snapshot is kept.
// A nil fetch keeps the current one.
func (p *Poller[T]) Reconfigure(fetch Fetcher[T], interval time.Duration) {
	p.mu.Lock()
	if fetch != nil {
		p.fetch = fetch
	}
	p.interval = normalizeInterval(interval)

	old := p.run
	if old == nil {
		p.mu.Unlock()
		return
	}
	p.startLocked(old.parent)
	p.mu.Unlock()

	old.cancel()
	<-old.done
}

// Snapshot returns the current state
func (p *Poller[T]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Subscribe returns a channel that always holds the latest snapshot, starting with the
// current one. Slow readers skip intermediate snapshots. cancel closes the channel.
func (p *Poller[T]) Subscribe() (<-chan Snapshot[T], func()) {
	ch := make(chan Snapshot[T], 1)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.snap
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (p *Poller[T]) loop(r *run, t ticker) {
	defer close(r.done)
	defer t.Stop()

	for {
		select {
		case <-r.ctx.Done():
			// Cancelled from outside; Stop and Reconfigure have already moved p.run on
			p.mu.Lock()
			if p.run == r {
				p.releaseLocked()
				log.Debug().Str("poller", p.name).Msg("Poller context done")
			}
			p.mu.Unlock()
			return
		case <-t.C():
			p.mu.Lock()
			if p.run == r {
				p.launchLocked(r)
			}
			p.mu.Unlock()
		}
	}
}

// releaseLocked detaches the current loop and settles the snapshot; callers hold p.mu
func (p *Poller[T]) releaseLocked() {
	p.run = nil
	p.inflight = make(map[uint64]struct{})
	p.snap.Loading = false
	if p.snap.State == StateLoading {
		switch {
		case p.snap.Err != nil:
			p.snap.State = StateFailed
		case p.snap.HasData:
			p.snap.State = StateReady
		default:
			p.snap.State = StateIdle
		}
	}
}

// launchLocked issues a new attempt for r; callers hold p.mu
func (p *Poller[T]) launchLocked(r *run) {
	p.issued++
	seq := p.issued
	p.inflight[seq] = struct{}{}

	p.snap.Loading = true
	p.snap.State = StateLoading
	p.notifyLocked()

	go p.attempt(r, seq, p.fetch)
}

func (p *Poller[T]) attempt(r *run, seq uint64, fetch Fetcher[T]) {
	data, err := safeFetch(r.ctx, fetch)
	p.apply(r, seq, data, err)
}

func safeFetch[T any](ctx context.Context, fetch Fetcher[T]) (data T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("fetch panicked: %v", rec)
		}
	}()
	return fetch(ctx)
}

func (p *Poller[T]) apply(r *run, seq uint64, data T, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Stopped, reconfigured or cancelled from outside
	if p.run != r || r.ctx.Err() != nil {
		return
	}

	delete(p.inflight, seq)
	loading := len(p.inflight) > 0

	if seq < p.snap.Seq {
		log.Debug().Str("poller", p.name).Uint64("seq", seq).Uint64("applied", p.snap.Seq).Msg("Discarding stale poll result")
		if p.snap.Loading != loading {
			p.snap.Loading = loading
			p.notifyLocked()
		}
		return
	}

	wasFailing := p.snap.Err != nil
	p.snap.Seq = seq
	p.snap.Loading = loading
	p.snap.UpdatedAt = time.Now()

	if err != nil {
		p.snap.Err = err
		p.snap.State = StateFailed
		// Only the first failure of a streak is worth a warning
		if wasFailing {
			log.Debug().Err(err).Str("poller", p.name).Uint64("seq", seq).Msg("Poll failed")
		} else {
			log.Warn().Err(err).Str("poller", p.name).Uint64("seq", seq).Msg("Poll failed")
		}
	} else {
		if wasFailing {
			log.Info().Str("poller", p.name).Uint64("seq", seq).Msg("Poll recovered")
		}
		p.snap.Data = data
		p.snap.HasData = true
		p.snap.Err = nil
		p.snap.State = StateReady
	}

	p.notifyLocked()
}

// notifyLocked pushes the snapshot to every subscriber without blocking; callers hold p.mu
func (p *Poller[T]) notifyLocked() {
	for _, ch := range p.subs {
		select {
		case ch <- p.snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p.snap:
			default:
			}
		}
	}
}
