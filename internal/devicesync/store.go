package devicesync

import (
	"sync"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// State is what subscribers and readers see.
type State struct {
	Devices   []device.Device `json:"devices"`
	IsLoading bool            `json:"isLoading"`
}

// Listener receives the state after every change.
type Listener func(State)

type subscription struct {
	id uint64
	fn Listener
}

// Store holds the reconciled view: an ordered list of devices indexed by id
// plus the loading flag.
//
// Every change goes through commit, which applies the mutation under the
// write lock and then notifies subscribers synchronously, in commit order,
// with the lock released. Listeners may read the Store. They must not start
// a mutation synchronously: hand the state to another goroutine instead.
type Store struct {
	notifyMu sync.Mutex // serialises commit+notify so listeners see changes in order

	mu        sync.RWMutex
	devices   []*device.Device
	index     map[string]int
	isLoading bool
	closed    bool
	subs      []subscription
	nextSubID uint64

	metrics *Metrics
}

// NewStore creates an empty Store with isLoading set.
func NewStore(metrics *Metrics) *Store {
	return &Store{
		index:     make(map[string]int),
		isLoading: true,
		metrics:   metrics,
	}
}

// Subscribe registers fn and returns a function that removes it.
// fn is not called with the current state; call State for that.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// State returns a copy of the current view.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Devices returns a copy of the current device list.
func (s *Store) Devices() []device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyDevicesLocked()
}

// Get returns a copy of one device.
func (s *Store) Get(id string) (device.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return device.Device{}, false
	}
	return *s.devices[i].DeepCopy(), true
}

// IsLoading reports whether no poll has completed yet.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// Len returns the number of devices in the view.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// Closed reports whether close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) stateLocked() State {
	return State{Devices: s.copyDevicesLocked(), IsLoading: s.isLoading}
}

func (s *Store) copyDevicesLocked() []device.Device {
	out := make([]device.Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = *d.DeepCopy()
	}
	return out
}

// pointers returns the current device pointers, shared, for Merge.
func (s *Store) pointers() []*device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*device.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// lookup returns the shared pointer for id, or nil.
func (s *Store) lookup(id string) *device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[id]; ok {
		return s.devices[i]
	}
	return nil
}

// commit runs mutate under the write lock. When mutate reports a change,
// subscribers are notified. Commits after close are dropped.
func (s *Store) commit(mutate func() bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed || !mutate() {
		s.mu.Unlock()
		return false
	}
	state := s.stateLocked()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.metrics.setDevices(len(state.Devices))
	s.metrics.notified()
	for _, sub := range subs {
		sub.fn(state)
	}
	return true
}

// applyMerge installs a merge result and clears isLoading.
func (s *Store) applyMerge(res MergeResult) bool {
	return s.commit(func() bool {
		changed := s.isLoading
		s.isLoading = false
		if res.Changed {
			s.setDevicesLocked(res.Devices)
			changed = true
		}
		return changed
	})
}

// setLoading flips the loading flag.
func (s *Store) setLoading(loading bool) bool {
	return s.commit(func() bool {
		if s.isLoading == loading {
			return false
		}
		s.isLoading = loading
		return true
	})
}

// put swaps in new values for devices already in the view, in one commit.
// Ids no longer present are skipped; put never adds a device.
func (s *Store) put(devices ...*device.Device) bool {
	return s.commit(func() bool {
		changed := false
		for _, d := range devices {
			if i, ok := s.index[d.ID]; ok && s.devices[i] != d {
				s.devices[i] = d
				changed = true
			}
		}
		return changed
	})
}

// revert restores each previous value whose slot still holds the
// optimistic value written by the same mutation. Slots that were replaced
// since, or devices removed since, are left alone.
func (s *Store) revert(writes []optimisticWrite) bool {
	return s.commit(func() bool {
		changed := false
		for _, w := range writes {
			i, ok := s.index[w.prev.ID]
			if !ok || s.devices[i] != w.next {
				continue
			}
			s.devices[i] = w.prev
			changed = true
		}
		return changed
	})
}

func (s *Store) setDevicesLocked(devices []*device.Device) {
	s.devices = devices
	s.index = make(map[string]int, len(devices))
	for i, d := range devices {
		s.index[d.ID] = i
	}
}

// close drops all later commits and subscriptions.
func (s *Store) close() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = nil
}
