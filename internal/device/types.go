package device

import (
	"reflect"
	"time"
)

// Device is one dashboard entity as reported by the backend.
//
// Identity is by ID. Every other field is replaced wholesale when a newer
// record arrives; there is no per-field merge.
type Device struct {
	ID       string `json:"id"`
	EntityID string `json:"entity_id,omitempty"`
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Room     string `json:"room"`
	IsOn     bool   `json:"isOn"`

	// Value is a sensor reading or setpoint: a number or a string.
	Value any    `json:"value,omitempty"`
	Unit  string `json:"unit,omitempty"`

	IsOnline   bool           `json:"isOnline"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Type classifies a device.
type Type string

// Device types reported by the backend.
const (
	TypeLight   Type = "light"
	TypeSwitch  Type = "switch"
	TypeSensor  Type = "sensor"
	TypeClimate Type = "climate"
	TypeLock    Type = "lock"
)

// AllTypes lists every known device type.
func AllTypes() []Type {
	return []Type{TypeLight, TypeSwitch, TypeSensor, TypeClimate, TypeLock}
}

// Valid reports whether t is a known device type.
func (t Type) Valid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Toggleable reports whether devices of this type have a meaningful on/off.
func (t Type) Toggleable() bool {
	return t == TypeLight || t == TypeSwitch
}

// Equal reports whether d and other describe the same device in the same
// state. Value and Attributes are compared deeply.
//
// Decoded JSON numbers are always float64, so two records of the same
// backend payload compare equal.
func (d *Device) Equal(other *Device) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.ID != other.ID ||
		d.EntityID != other.EntityID ||
		d.Name != other.Name ||
		d.Type != other.Type ||
		d.Room != other.Room ||
		d.IsOn != other.IsOn ||
		d.Unit != other.Unit ||
		d.IsOnline != other.IsOnline {
		return false
	}
	if !reflect.DeepEqual(d.Value, other.Value) {
		return false
	}
	// A nil map and an empty map carry the same information.
	if len(d.Attributes) == 0 && len(other.Attributes) == 0 {
		return true
	}
	return reflect.DeepEqual(d.Attributes, other.Attributes)
}

// DeepCopy returns an independent copy. Nested maps and slices inside
// Attributes and Value are cloned so the copy can be handed to subscribers.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Value = deepCopyValue(d.Value)
	cpy.Attributes = deepCopyMap(d.Attributes)
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = deepCopyValue(elem)
		}
		return out
	default:
		return v
	}
}

// Scene is a backend-defined preset that changes several devices at once.
type Scene struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	EntityID string `json:"entity_id,omitempty"`
	Type     string `json:"type,omitempty"`
	Icon     string `json:"icon,omitempty"`
}

// Routine is a backend-defined automation that can be triggered on demand.
type Routine struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// SyncReport is the backend's answer to a device re-import.
type SyncReport struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Summary   SyncSummary `json:"summary"`
	Devices   []Device    `json:"devices,omitempty"`
}

// SyncSummary counts what a re-import changed.
type SyncSummary struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}
