package devicesync

import (
	"sort"
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

type pendingEntry struct {
	expiresAt time.Time
	gen       uint64
}

// Tracker records which device ids carry an outstanding optimistic write
// and until when that write masks server data.
//
// There is one entry per id; marking an id again replaces its expiry.
// Expiry is lazy: nothing fires at expiresAt, entries are pruned by the
// next merge.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	gen     uint64
	clock   Clock
}

// NewTracker creates a Tracker. A nil clock means time.Now.
func NewTracker(clock Clock) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		entries: make(map[string]pendingEntry),
		clock:   clock,
	}
}

// MarkPending sets id's expiry to clock()+ttl and returns it.
func (t *Tracker) MarkPending(id string, ttl time.Duration) time.Time {
	expiresAt, _ := t.mark(id, ttl)
	return expiresAt
}

// mark is MarkPending plus the generation of the new entry, used by the
// gateway to release only its own entry.
func (t *Tracker) mark(id string, ttl time.Duration) (time.Time, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	e := pendingEntry{expiresAt: t.clock().Add(ttl), gen: t.gen}
	t.entries[id] = e
	return e.expiresAt, e.gen
}

// Clear removes the entries for ids, whatever their expiry.
func (t *Tracker) Clear(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		delete(t.entries, id)
	}
}

// release removes id only if its entry is still generation gen. A later
// mutation of the same id keeps its own entry.
func (t *Tracker) release(id string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[id]; ok && e.gen == gen {
		delete(t.entries, id)
	}
}

// IsPending reports whether id has an entry with expiresAt after now.
func (t *Tracker) IsPending(id string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	return ok && e.expiresAt.After(now)
}

// Live returns a copy of the entries still unexpired at now.
func (t *Tracker) Live(now time.Time) map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]time.Time, len(t.entries))
	for id, e := range t.entries {
		if e.expiresAt.After(now) {
			out[id] = e.expiresAt
		}
	}
	return out
}

// Entries returns a copy of every entry, expired or not.
func (t *Tracker) Entries() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]time.Time, len(t.entries))
	for id, e := range t.entries {
		out[id] = e.expiresAt
	}
	return out
}

// Prune removes entries whose expiry is at or before now and returns their
// ids, sorted.
func (t *Tracker) Prune(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for id, e := range t.entries {
		if !e.expiresAt.After(now) {
			expired = append(expired, id)
			delete(t.entries, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Len returns the number of entries, including expired ones not yet pruned.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Now returns the tracker's clock reading.
func (t *Tracker) Now() time.Time {
	return t.clock()
}
