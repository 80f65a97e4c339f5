package devicesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func light(id string, on bool) device.Device {
	return device.Device{
		ID:       id,
		Name:     "Light " + id,
		Type:     device.TypeLight,
		Room:     "Living",
		IsOn:     on,
		IsOnline: true,
	}
}

var errBackend = errors.New("backend exploded")

// fakeSource is a RemoteDeviceSource and CatalogSource whose behaviour is
// set per test. Gates, when non-nil, make calls block until released.
type fakeSource struct {
	mu sync.Mutex

	devices    []device.Device
	fetchErr   error
	fetchCount int
	// fetchStarted receives once per FetchAll call; fetchRelease is read
	// before FetchAll returns.
	fetchStarted chan struct{}
	fetchRelease chan struct{}

	setErr       error
	setCalls     int
	setStarted   chan struct{}
	setRelease   chan struct{}
	batchErr     error
	batchCalls   [][]string
	batchStarted chan struct{}
	batchRelease chan struct{}

	sceneErr     error
	sceneCalls   []string
	routineErr   error
	routineCalls []string

	scenes     []device.Scene
	routines   []device.Routine
	catalogErr error

	syncReport *device.SyncReport
	syncErr    error
}

func (f *fakeSource) setDevices(devices ...device.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

func (f *fakeSource) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]device.Device, error) {
	f.mu.Lock()
	f.fetchCount++
	started, release := f.fetchStarted, f.fetchRelease
	out := append([]device.Device(nil), f.devices...)
	err := f.fetchErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeSource) SetState(_ context.Context, id string, on bool) (*device.Device, error) {
	f.mu.Lock()
	f.setCalls++
	started, release, err := f.setStarted, f.setRelease, f.setErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	d := light(id, on)
	return &d, nil
}

func (f *fakeSource) BatchSetState(_ context.Context, ids []string, on bool) ([]device.Device, error) {
	f.mu.Lock()
	f.batchCalls = append(f.batchCalls, append([]string(nil), ids...))
	started, release, err := f.batchStarted, f.batchRelease, f.batchErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	out := make([]device.Device, len(ids))
	for i, id := range ids {
		out[i] = light(id, on)
	}
	return out, nil
}

func (f *fakeSource) TriggerScene(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sceneCalls = append(f.sceneCalls, id)
	return f.sceneErr
}

func (f *fakeSource) TriggerRoutine(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routineCalls = append(f.routineCalls, id)
	return f.routineErr
}

// catalogSource adds CatalogSource and BackendSyncer to fakeSource.
type catalogSource struct {
	*fakeSource
}

func (c catalogSource) ListScenes(context.Context) ([]device.Scene, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalogErr != nil {
		return nil, c.catalogErr
	}
	return append([]device.Scene(nil), c.scenes...), nil
}

func (c catalogSource) ListRoutines(context.Context) ([]device.Routine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalogErr != nil {
		return nil, c.catalogErr
	}
	return append([]device.Routine(nil), c.routines...), nil
}

func (c catalogSource) SyncDevices(context.Context) (*device.SyncReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncErr != nil {
		return nil, c.syncErr
	}
	return c.syncReport, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	mutations []MutationRecord
	syncs     []SyncRecord
}

func (r *fakeRecorder) RecordMutation(_ context.Context, rec MutationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, rec)
	return nil
}

func (r *fakeRecorder) RecordSync(_ context.Context, rec SyncRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, rec)
	return nil
}

func (r *fakeRecorder) records() []MutationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MutationRecord(nil), r.mutations...)
}

// stateLog collects notifications.
type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) listen(st State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, st)
}

func (l *stateLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}

func (l *stateLog) last() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[len(l.states)-1]
}

func newTestSync(t *testing.T, src RemoteDeviceSource, clock *fakeClock, mutate ...func(*Options)) *Synchronizer {
	t.Helper()
	opts := Options{
		Source:       src,
		PendingTTL:   2 * time.Second,
		PollInterval: time.Hour,
		Clock:        clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustGet(t *testing.T, s *Synchronizer, id string) device.Device {
	t.Helper()
	d, ok := s.Device(id)
	if !ok {
		t.Fatalf("device %q not in view", id)
	}
	return d
}
