package devicesync

import (
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// MergeResult is the outcome of one reconciliation.
type MergeResult struct {
	// Devices is the next view, in snapshot order.
	Devices []*device.Device

	// Changed is false when Devices is pointer-for-pointer identical to
	// the previous view, in which case nobody needs to be notified.
	Changed bool

	// Expired lists pending ids whose window closed at or before now.
	// The caller prunes them from the Tracker in the same step.
	Expired []string

	// Dropped counts snapshot records ignored for having a blank id.
	Dropped int
}

// Merge combines the previous view, a fresh snapshot and the pending set
// into the next view. It has no side effects.
//
// The snapshot decides membership and order: ids missing from it are
// gone, pending or not. For each snapshot record:
//
//   - a live pending id keeps the previous pointer (the optimistic value)
//   - a record structurally equal to the previous one keeps the previous
//     pointer
//   - anything else is adopted as a copy
//
// If an id occurs twice in the snapshot the later record wins, placed at
// the position of the first.
func Merge(previous []*device.Device, snapshot []device.Device, pending map[string]time.Time, now time.Time) MergeResult {
	prevByID := make(map[string]*device.Device, len(previous))
	for _, d := range previous {
		prevByID[d.ID] = d
	}

	var res MergeResult

	order := make([]string, 0, len(snapshot))
	latest := make(map[string]int, len(snapshot))
	for i := range snapshot {
		id := snapshot[i].ID
		if id == "" {
			res.Dropped++
			continue
		}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = i
	}

	res.Devices = make([]*device.Device, 0, len(order))
	for _, id := range order {
		incoming := &snapshot[latest[id]]
		prev, known := prevByID[id]

		switch {
		case known && isLive(pending, id, now):
			res.Devices = append(res.Devices, prev)
		case known && prev.Equal(incoming):
			res.Devices = append(res.Devices, prev)
		default:
			res.Devices = append(res.Devices, incoming.DeepCopy())
		}
	}

	for id, expiresAt := range pending {
		if !expiresAt.After(now) {
			res.Expired = append(res.Expired, id)
		}
	}
	sort.Strings(res.Expired)

	res.Changed = !samePointers(previous, res.Devices)
	return res
}

func isLive(pending map[string]time.Time, id string, now time.Time) bool {
	expiresAt, ok := pending[id]
	return ok && expiresAt.After(now)
}

func samePointers(a, b []*device.Device) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
