package devicesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PollFunc performs one fetch-and-apply cycle.
type PollFunc func(ctx context.Context) error

// Poller runs a PollFunc periodically with at most one call in flight.
//
// A tick that finds the previous poll still running is skipped, not
// queued. RequestRefresh asks for an extra poll as soon as the current one
// finishes; bursts of requests coalesce into one. Requests made while the
// loop is stopped are dropped.
type Poller struct {
	poll    PollFunc
	logger  Logger
	metrics *Metrics

	busy      sync.Mutex // held for the duration of one poll
	refreshCh chan struct{}
	queued    atomic.Bool // a forced poll is waiting for busy

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a stopped Poller.
func NewPoller(poll PollFunc, logger Logger, metrics *Metrics) *Poller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{
		poll:      poll,
		logger:    logger,
		metrics:   metrics,
		refreshCh: make(chan struct{}, 1),
	}
}

// Start polls immediately and then every interval until ctx is cancelled
// or Stop is called.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", interval)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPollerRunning
	}

	select {
	case <-p.refreshCh:
	default:
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.loop(loopCtx, interval)

	p.logger.Info("poller started", "interval", interval.String())
	return nil
}

// Stop halts polling and waits for in-flight polls to return.
// Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("poller stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// RequestRefresh schedules an out-of-band poll without blocking. It does
// nothing unless the loop is running.
func (p *Poller) RequestRefresh() {
	if !p.Running() {
		return
	}
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// RefreshNow waits for any in-flight poll, runs one itself and returns its
// error. It works whether or not the loop is running.
func (p *Poller) RefreshNow(ctx context.Context) error {
	p.busy.Lock()
	defer p.busy.Unlock()
	return p.run(ctx)
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	p.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-p.refreshCh:
			p.forced(ctx)
		}
	}
}

// tick starts a poll unless one is already running.
func (p *Poller) tick(ctx context.Context) {
	if !p.busy.TryLock() {
		p.metrics.pollSkipped()
		p.logger.Debug("poll skipped, previous fetch still in flight")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Unlock()
		p.run(ctx) //nolint:errcheck // logged in run
	}()
}

// forced waits for the in-flight poll and then runs another. While one
// forced poll is waiting, further requests are absorbed by it.
func (p *Poller) forced(ctx context.Context) {
	if !p.queued.CompareAndSwap(false, true) {
		p.logger.Debug("refresh already queued")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.busy.Lock()
		defer p.busy.Unlock()
		p.queued.Store(false)
		if ctx.Err() != nil {
			return
		}
		p.run(ctx) //nolint:errcheck // logged in run
	}()
}

func (p *Poller) run(ctx context.Context) error {
	start := time.Now()
	err := p.poll(ctx)
	p.metrics.observePoll(time.Since(start), err)

	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("poll failed", "error", err)
	}
	return err
}
