package devicesync

import (
	"testing"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

func seedStore(t *testing.T, devices ...device.Device) *Store {
	t.Helper()
	s := NewStore(nil)
	s.applyMerge(Merge(nil, devices, nil, t0))
	return s
}

func TestStore_InitialState(t *testing.T) {
	s := NewStore(nil)
	if !s.IsLoading() {
		t.Error("new store should be loading")
	}
	if st := s.State(); len(st.Devices) != 0 || !st.IsLoading {
		t.Errorf("State() = %+v", st)
	}
}

func TestStore_ApplyMergeNotifiesOnChangeOnly(t *testing.T) {
	s := NewStore(nil)
	log := &stateLog{}
	s.Subscribe(log.listen)

	res := Merge(nil, []device.Device{light("1", true)}, nil, t0)
	if !s.applyMerge(res) {
		t.Fatal("first merge should commit")
	}
	if log.count() != 1 || log.last().IsLoading {
		t.Fatalf("notifications = %d, last = %+v", log.count(), log.last())
	}

	same := Merge(s.pointers(), []device.Device{light("1", true)}, nil, t0)
	if s.applyMerge(same) {
		t.Error("unchanged merge should not commit")
	}
	if log.count() != 1 {
		t.Errorf("notifications = %d, want 1", log.count())
	}
}

func TestStore_EmptyFirstPollClearsLoading(t *testing.T) {
	s := NewStore(nil)
	log := &stateLog{}
	s.Subscribe(log.listen)

	s.applyMerge(Merge(nil, nil, nil, t0))

	if s.IsLoading() {
		t.Error("loading should clear after the first merge, even when empty")
	}
	if log.count() != 1 {
		t.Errorf("notifications = %d, want 1", log.count())
	}
}

func TestStore_SubscribersCalledInOrder(t *testing.T) {
	s := NewStore(nil)
	var order []int
	s.Subscribe(func(State) { order = append(order, 1) })
	s.Subscribe(func(State) { order = append(order, 2) })

	s.setLoading(false)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(nil)
	log := &stateLog{}
	unsubscribe := s.Subscribe(log.listen)

	unsubscribe()
	unsubscribe() // idempotent
	s.setLoading(false)

	if log.count() != 0 {
		t.Errorf("unsubscribed listener called %d times", log.count())
	}
}

func TestStore_ListenerCanRead(t *testing.T) {
	s := NewStore(nil)
	var seen int
	s.Subscribe(func(State) { seen = s.Len() })

	s.applyMerge(Merge(nil, []device.Device{light("1", true), light("2", true)}, nil, t0))

	if seen != 2 {
		t.Errorf("listener saw %d devices, want 2", seen)
	}
}

func TestStore_PutNeverAdds(t *testing.T) {
	s := seedStore(t, light("1", false))

	ghost := light("ghost", true)
	if s.put(&ghost) {
		t.Error("put of an unknown id should not commit")
	}
	if _, ok := s.Get("ghost"); ok {
		t.Error("put must not add devices")
	}
}

func TestStore_RevertOnlyOwnWrite(t *testing.T) {
	s := seedStore(t, light("1", false), light("2", false))

	prev1, prev2 := s.lookup("1"), s.lookup("2")
	next1, next2 := prev1.DeepCopy(), prev2.DeepCopy()
	next1.IsOn, next2.IsOn = true, true
	s.put(next1, next2)

	// Something else replaced 2 in the meantime
	newer := next2.DeepCopy()
	newer.Name = "renamed"
	s.put(newer)

	s.revert([]optimisticWrite{{prev: prev1, next: next1}, {prev: prev2, next: next2}})

	if d, _ := s.Get("1"); d.IsOn {
		t.Error("device 1 should be reverted")
	}
	if d, _ := s.Get("2"); d.Name != "renamed" {
		t.Error("device 2 was replaced by a newer value and must not be reverted")
	}
}

func TestStore_RevertSkipsRemoved(t *testing.T) {
	s := seedStore(t, light("1", false), light("2", false))
	prev := s.lookup("2")
	next := prev.DeepCopy()
	next.IsOn = true
	s.put(next)

	s.applyMerge(Merge(s.pointers(), []device.Device{light("1", false)}, nil, t0))
	s.revert([]optimisticWrite{{prev: prev, next: next}})

	if _, ok := s.Get("2"); ok {
		t.Error("rollback re-created a removed device")
	}
}

func TestStore_StateIsACopy(t *testing.T) {
	d := light("1", false)
	d.Attributes = map[string]any{"brightness": float64(10)}
	s := seedStore(t, d)

	st := s.State()
	st.Devices[0].IsOn = true
	st.Devices[0].Attributes["brightness"] = float64(99)

	got, _ := s.Get("1")
	if got.IsOn || got.Attributes["brightness"] != float64(10) {
		t.Error("mutating a State copy changed the store")
	}
}

func TestStore_CommitsAfterCloseIgnored(t *testing.T) {
	s := seedStore(t, light("1", false))
	log := &stateLog{}
	s.Subscribe(log.listen)

	s.close()

	if s.applyMerge(Merge(s.pointers(), []device.Device{light("1", true)}, nil, t0)) {
		t.Error("commit after close should be ignored")
	}
	if log.count() != 0 {
		t.Error("no notification expected after close")
	}
	if !s.Closed() {
		t.Error("Closed() should be true")
	}
}
