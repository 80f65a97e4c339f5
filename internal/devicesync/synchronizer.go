package devicesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// Defaults applied by New when the options leave them zero.
const (
	DefaultPendingTTL   = 2 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Options configures a Synchronizer.
type Options struct {
	// Source is the backend. Required.
	Source RemoteDeviceSource

	// Filter is applied to every snapshot before it is merged.
	Filter device.Filter

	// PendingTTL is how long an optimistic write masks server data,
	// measured from when the mutation started.
	PendingTTL time.Duration

	// PollInterval is the fetch-all cadence used by Start.
	PollInterval time.Duration

	Clock    Clock
	Logger   Logger
	Metrics  *Metrics
	Recorder Recorder

	// OnAuthError is called when the backend refuses the credential,
	// typically session.Session.HandleAuthError.
	OnAuthError func(error)
}

// Synchronizer is the consumer-facing facade. Build one per session.
//
// It owns the step mutex that makes each merge, optimistic write and
// rollback atomic with respect to the others.
type Synchronizer struct {
	opts Options

	step    sync.Mutex
	store   *Store
	tracker *Tracker
	poller  *Poller
	gateway *Gateway

	catalogMu sync.RWMutex
	catalog   Catalog

	closed atomic.Bool
}

// New wires the components together. Nothing runs until Start or
// RefreshNow is called.
func New(opts Options) (*Synchronizer, error) {
	if opts.Source == nil {
		return nil, errors.New("devicesync: source is required")
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	s := &Synchronizer{
		opts:    opts,
		store:   NewStore(opts.Metrics),
		tracker: NewTracker(opts.Clock),
	}
	s.poller = NewPoller(s.poll, opts.Logger, opts.Metrics)
	s.gateway = &Gateway{
		step:     &s.step,
		store:    s.store,
		tracker:  s.tracker,
		remote:   opts.Source,
		ttl:      opts.PendingTTL,
		refresh:  s.poller,
		recorder: opts.Recorder,
		onAuth:   opts.OnAuthError,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	return s, nil
}

// Start begins periodic polling. The first poll runs immediately.
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.poller.Start(ctx, s.opts.PollInterval)
}

// Close stops polling and freezes the view. Results that arrive later are
// discarded and further mutations return ErrClosed.
func (s *Synchronizer) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.poller.Stop()
	s.store.close()
}

// Subscribe registers fn for state changes. See Store for the callback
// contract.
func (s *Synchronizer) Subscribe(fn Listener) (unsubscribe func()) {
	return s.store.Subscribe(fn)
}

// State returns a copy of the current view.
func (s *Synchronizer) State() State {
	return s.store.State()
}

// Device returns one device from the view.
func (s *Synchronizer) Device(id string) (device.Device, bool) {
	return s.store.Get(id)
}

// IsPending reports whether id currently shows an optimistic value.
func (s *Synchronizer) IsPending(id string) bool {
	return s.tracker.IsPending(id, s.opts.Clock())
}

// Catalog returns the last fetched scenes and routines.
func (s *Synchronizer) Catalog() Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return Catalog{
		Scenes:   append([]device.Scene(nil), s.catalog.Scenes...),
		Routines: append([]device.Routine(nil), s.catalog.Routines...),
	}
}

// ToggleDevice sets one device on or off. See Gateway.ToggleSingle.
func (s *Synchronizer) ToggleDevice(ctx context.Context, id string, on bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.gateway.ToggleSingle(ctx, id, on)
}

// BatchToggle sets several devices at once. See Gateway.BatchToggle.
func (s *Synchronizer) BatchToggle(ctx context.Context, ids []string, on bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.gateway.BatchToggle(ctx, ids, on)
}

// ExecuteScene triggers a scene by id.
func (s *Synchronizer) ExecuteScene(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.gateway.ExecuteScene(ctx, id)
}

// ExecuteRoutine triggers a routine by id.
func (s *Synchronizer) ExecuteRoutine(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.gateway.ExecuteRoutine(ctx, id)
}

// RefreshNow polls immediately, after any poll already in flight, and
// returns the poll's error.
func (s *Synchronizer) RefreshNow(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.poller.RefreshNow(ctx)
}

// SyncBackend asks the backend to re-import its devices and applies the
// returned list through the normal merge, so pending writes still win.
// When the backend returns no device list a refresh is requested instead.
func (s *Synchronizer) SyncBackend(ctx context.Context) (*device.SyncReport, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	syncer, ok := s.opts.Source.(BackendSyncer)
	if !ok {
		return nil, ErrSyncUnsupported
	}

	report, err := syncer.SyncDevices(ctx)
	if err != nil {
		s.notifyAuth(err)
		s.opts.Logger.Warn("backend sync failed", "error", err)
		return nil, err
	}

	if len(report.Devices) > 0 {
		s.apply(report.Devices)
	} else {
		s.poller.RequestRefresh()
	}

	ranAt := report.Timestamp
	if ranAt.IsZero() {
		ranAt = s.opts.Clock()
	}
	s.opts.Logger.Info("backend sync complete",
		"status", report.Status,
		"total", report.Summary.Total,
		"new", report.Summary.New,
		"updated", report.Summary.Updated,
		"removed", report.Summary.Removed,
	)

	if s.opts.Recorder != nil {
		rec := SyncRecord{Status: report.Status, RanAt: ranAt, Summary: report.Summary}
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := s.opts.Recorder.RecordSync(recCtx, rec); err != nil {
			s.opts.Logger.Error("recording backend sync", "error", err)
		}
	}

	return report, nil
}

// poll fetches devices and, when supported, the catalog concurrently.
// Only a device fetch failure fails the poll.
func (s *Synchronizer) poll(ctx context.Context) error {
	var (
		devices  []device.Device
		scenes   []device.Scene
		routines []device.Routine
		sceneErr error
		routErr  error
	)

	catalog, hasCatalog := s.opts.Source.(CatalogSource)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		devices, err = s.opts.Source.FetchAll(gctx)
		return err
	})
	if hasCatalog {
		g.Go(func() error {
			scenes, sceneErr = catalog.ListScenes(gctx)
			return nil
		})
		g.Go(func() error {
			routines, routErr = catalog.ListRoutines(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.store.setLoading(false)
		s.notifyAuth(err)
		return err
	}

	s.apply(devices)

	if hasCatalog {
		s.updateCatalog(scenes, sceneErr, routines, routErr)
	}
	return nil
}

// apply filters a snapshot and merges it into the view in one step.
func (s *Synchronizer) apply(snapshot []device.Device) {
	if !s.opts.Filter.IsZero() {
		snapshot = s.opts.Filter.Apply(snapshot)
	}

	s.step.Lock()
	defer s.step.Unlock()

	now := s.opts.Clock()
	res := Merge(s.store.pointers(), snapshot, s.tracker.Entries(), now)
	if len(res.Expired) > 0 {
		s.tracker.Prune(now)
	}
	if res.Dropped > 0 {
		s.opts.Logger.Warn("snapshot contained devices without an id", "dropped", res.Dropped)
	}
	s.store.applyMerge(res)
	s.opts.Metrics.setPending(s.tracker.Len())
}

func (s *Synchronizer) updateCatalog(scenes []device.Scene, sceneErr error, routines []device.Routine, routErr error) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if sceneErr != nil {
		s.notifyAuth(sceneErr)
		s.opts.Logger.Warn("scene list failed, keeping previous", "error", sceneErr)
	} else {
		s.catalog.Scenes = scenes
	}
	if routErr != nil {
		s.notifyAuth(routErr)
		s.opts.Logger.Warn("routine list failed, keeping previous", "error", routErr)
	} else {
		s.catalog.Routines = routines
	}
}

func (s *Synchronizer) notifyAuth(err error) {
	if s.opts.OnAuthError != nil && IsAuthError(err) {
		s.opts.OnAuthError(err)
	}
}
