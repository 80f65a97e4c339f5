package relay

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
)

// ErrRunning is returned by Start on a relay that is already running.
var ErrRunning = errors.New("relay: already running")

// Change is one batch of differences between consecutive states.
type Change struct {
	Changed []device.Device
	Removed []string
}

// Empty reports whether the change carries nothing.
func (c Change) Empty() bool {
	return len(c.Changed) == 0 && len(c.Removed) == 0
}

// Sink receives state changes from the relay's worker goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, change Change) error
}

// StateSource is the subscription surface of devicesync.Synchronizer.
type StateSource interface {
	Subscribe(fn devicesync.Listener) (unsubscribe func())
	State() devicesync.State
}

// Logger is the logging surface the relay needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Relay mirrors store changes to sinks without ever blocking the store.
//
// The store listener only parks the newest state and signals the worker;
// intermediate states that arrive while the worker is busy are skipped.
// The worker diffs against the last state it delivered, so a skipped state
// still reaches sinks as part of the next diff.
type Relay struct {
	sinks  []Sink
	logger Logger

	lifeMu      sync.Mutex
	running     bool
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}

	mu     sync.Mutex
	latest *devicesync.State
	signal chan struct{}

	// worker-owned
	delivered map[string]device.Device
}

// New returns a stopped relay for sinks.
func New(logger Logger, sinks ...Sink) *Relay {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Relay{
		sinks:  sinks,
		logger: logger,
		signal: make(chan struct{}, 1),
	}
}

// Start subscribes to src and starts the worker. The current state is
// delivered first, so sinks begin with a full picture.
func (r *Relay) Start(ctx context.Context, src StateSource) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.running {
		return ErrRunning
	}

	r.mu.Lock()
	r.latest = nil
	r.mu.Unlock()
	r.delivered = make(map[string]device.Device)

	r.unsubscribe = src.Subscribe(r.offer)
	current := src.State()

	r.mu.Lock()
	// A listener call that raced in carries a state at least as new.
	if r.latest == nil {
		r.latest = &current
	}
	r.mu.Unlock()
	r.notify()

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.running = true
	go r.run(ctx, r.done)
	return nil
}

// Stop unsubscribes and waits for the worker to exit. Idempotent.
func (r *Relay) Stop() {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if !r.running {
		return
	}
	r.running = false

	r.unsubscribe()
	r.cancel()
	<-r.done
}

// offer is the store listener. It never blocks.
func (r *Relay) offer(st devicesync.State) {
	r.mu.Lock()
	r.latest = &st
	r.mu.Unlock()
	r.notify()
}

func (r *Relay) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *Relay) take() *devicesync.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.latest
	r.latest = nil
	return st
}

func (r *Relay) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.signal:
			if st := r.take(); st != nil {
				r.deliver(ctx, *st)
			}
		}
	}
}

func (r *Relay) deliver(ctx context.Context, st devicesync.State) {
	if st.IsLoading && len(st.Devices) == 0 {
		return
	}

	change, next := Diff(r.delivered, st.Devices)
	r.delivered = next
	if change.Empty() {
		return
	}

	r.logger.Debug("relaying state change", "changed", len(change.Changed), "removed", len(change.Removed))
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, change); err != nil {
			r.logger.Warn("relay sink failed", "sink", sink.Name(), "error", err)
		}
	}
}

// Diff compares the previously delivered devices with a new list by id.
// It returns what changed, in list order, and the map to diff against
// next time.
func Diff(prev map[string]device.Device, devices []device.Device) (Change, map[string]device.Device) {
	next := make(map[string]device.Device, len(devices))
	var change Change

	for i := range devices {
		d := devices[i]
		next[d.ID] = d
		old, ok := prev[d.ID]
		if !ok || !old.Equal(&d) {
			change.Changed = append(change.Changed, d)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			change.Removed = append(change.Removed, id)
		}
	}
	slices.Sort(change.Removed)

	return change, next
}
