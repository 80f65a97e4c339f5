package device

import "strings"

// Filter selects the devices that make up the dashboard view.
// The zero Filter keeps everything.
type Filter struct {
	// Types keeps only these types. Empty means all types.
	Types []Type

	// OnlineOnly drops devices the backend reports as offline.
	OnlineOnly bool

	// RequireRoom drops devices with a blank room.
	RequireRoom bool

	// ExcludeRooms drops devices in these rooms (case-insensitive), e.g.
	// the backend's "unassigned" placeholder room.
	ExcludeRooms []string
}

// Match reports whether d passes the filter.
func (f Filter) Match(d *Device) bool {
	if f.OnlineOnly && !d.IsOnline {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, d.Type) {
		return false
	}
	room := strings.TrimSpace(d.Room)
	if f.RequireRoom && room == "" {
		return false
	}
	for _, excluded := range f.ExcludeRooms {
		if strings.EqualFold(room, strings.TrimSpace(excluded)) {
			return false
		}
	}
	return true
}

// Apply returns the devices that pass the filter, in order. The input is
// not modified.
func (f Filter) Apply(devices []Device) []Device {
	out := make([]Device, 0, len(devices))
	for i := range devices {
		if f.Match(&devices[i]) {
			out = append(out, devices[i])
		}
	}
	return out
}

// IsZero reports whether the filter keeps every device.
func (f Filter) IsZero() bool {
	return len(f.Types) == 0 && !f.OnlineOnly && !f.RequireRoom && len(f.ExcludeRooms) == 0
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTypes converts configuration strings to Types, rejecting unknown
// names.
func ParseTypes(names []string) ([]Type, error) {
	out := make([]Type, 0, len(names))
	for _, name := range names {
		t := Type(strings.ToLower(strings.TrimSpace(name)))
		if !t.Valid() {
			return nil, wrapf(ErrInvalidType, "%q", name)
		}
		out = append(out, t)
	}
	return out, nil
}
