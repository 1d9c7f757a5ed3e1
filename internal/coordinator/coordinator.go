package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 2 * time.Second
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the poll cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTimeout sets the bound on each fetch. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type subscription struct {
	id  string
	obs Observer
}

// Coordinator drives periodic single-flight fetches. It has two states, idle
// and fetching, held in one atomic flag; a tick that finds a fetch in flight
// is dropped.
type Coordinator struct {
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration

	fetching atomic.Bool
	started  atomic.Bool

	mu      sync.RWMutex
	latest  *nobreak.Status
	last    *Update
	stats   Stats
	skipped atomic.Int64

	obsMu     sync.RWMutex
	observers []subscription

	// loopCtx and cancel are set by Start and guarded by mu.
	loopCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a Coordinator that polls f. It does nothing until Start.
func New(f Fetcher, opts ...Option) *Coordinator {
	if f == nil {
		panic("coordinator: fetcher must not be nil")
	}
	c := &Coordinator{
		fetcher:  f,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval returns the configured poll cadence.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// Timeout returns the configured per-fetch bound.
func (c *Coordinator) Timeout() time.Duration { return c.timeout }

// Start performs the first fetch synchronously. If it fails, the error is
// returned and no polling loop is started. Otherwise the periodic loop runs
// until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := c.Refresh(ctx); err != nil {
		c.started.Store(false)
		return fmt.Errorf("coordinator: initial refresh: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.loopCtx, c.cancel = loopCtx, cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(loopCtx)
	return nil
}

// Stop cancels the polling loop and waits for any in-flight fetch it started.
func (c *Coordinator) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// stopping reports whether the polling loop has been shut down.
func (c *Coordinator) stopping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loopCtx != nil && c.loopCtx.Err() != nil
}

// Refresh fetches now, in the caller's goroutine, under the same single-flight
// guard as the timer. It returns ErrFetchInFlight without fetching if another
// fetch is outstanding.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if !c.fetching.CompareAndSwap(false, true) {
		return ErrFetchInFlight
	}
	defer c.fetching.Store(false)
	return c.fetch(ctx)
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick launches a fetch unless one is already running. The timer goroutine
// never waits on the network.
func (c *Coordinator) tick(ctx context.Context) bool {
	if !c.fetching.CompareAndSwap(false, true) {
		c.skipped.Add(1)
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.fetching.Store(false)
		_ = c.fetch(ctx)
	}()
	return true
}

// fetch runs one bounded fetch, records the outcome and publishes it. The
// caller must hold the fetching flag.
func (c *Coordinator) fetch(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	st, err := c.fetcher.FetchStatus(fctx)
	elapsed := time.Since(start)

	// Shutting down: nothing to report.
	if c.stopping() {
		if err == nil {
			err = context.Canceled
		}
		return err
	}
	// A caller that cancels its own Refresh records nothing; a fetch that
	// completed anyway is still recorded.
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}

	if err != nil && errors.Is(fctx.Err(), context.DeadlineExceeded) && !errors.Is(err, nobreak.ErrTimeout) {
		err = &nobreak.TimeoutError{Op: "fetch status", Err: fctx.Err()}
	}

	u := Update{At: time.Now(), Duration: elapsed}
	if err != nil {
		u.Err = err
	} else {
		snapshot := st
		u.Status = &snapshot
	}

	c.record(u)
	c.publish(u)
	return err
}

func (c *Coordinator) record(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = &u
	c.stats.Polls++
	if u.Err != nil {
		c.stats.Failures++
		c.stats.ConsecutiveFailures++
		c.stats.LastError = u.Err.Error()
		if c.stats.ConsecutiveFailures == 1 {
			log.Printf("nobreak: update failed: %v", u.Err)
		}
		return
	}

	if c.stats.ConsecutiveFailures > 0 {
		log.Printf("nobreak: update recovered after %d failed polls", c.stats.ConsecutiveFailures)
	}
	c.latest = u.Status
	c.stats.ConsecutiveFailures = 0
	c.stats.LastError = ""
	c.stats.LastSuccess = u.At
}

func (c *Coordinator) publish(u Update) {
	c.obsMu.RLock()
	subs := make([]subscription, len(c.observers))
	copy(subs, c.observers)
	c.obsMu.RUnlock()

	for _, s := range subs {
		s.obs.OnUpdate(u)
	}
}

// Subscribe registers o for every future update and returns its subscription
// ID together with a function that removes it.
func (c *Coordinator) Subscribe(o Observer) (string, func()) {
	id := uuid.NewString()
	c.obsMu.Lock()
	c.observers = append(c.observers, subscription{id: id, obs: o})
	c.obsMu.Unlock()
	return id, func() { c.Unsubscribe(id) }
}

// Unsubscribe removes the observer with the given ID. Unknown IDs are ignored.
func (c *Coordinator) Unsubscribe(id string) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	for i, s := range c.observers {
		if s.id == id {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// Latest returns the last successfully fetched snapshot. A failed poll does
// not clear it.
func (c *Coordinator) Latest() (nobreak.Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return nobreak.Status{}, false
	}
	return *c.latest, true
}

// LastUpdate returns the most recent poll outcome, successful or not.
func (c *Coordinator) LastUpdate() (Update, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Update{}, false
	}
	return *c.last, true
}

// Stats returns a copy of the polling counters.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	s := c.stats
	c.mu.RUnlock()
	s.SkippedTicks = c.skipped.Load()
	s.Fetching = c.fetching.Load()
	c.obsMu.RLock()
	s.Observers = len(c.observers)
	c.obsMu.RUnlock()
	return s
}
