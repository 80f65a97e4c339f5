package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// flexID accepts a JSON string or number. The backend uses integer
// primary keys for scenes and routines and may for devices.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

// listEnvelope decodes either a bare JSON array or a paginated
// {"results": [...]} object.
type listEnvelope[T any] struct {
	items []T
}

func (l *listEnvelope[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &l.items)
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	l.items = page.Results
	return nil
}

type wireDevice struct {
	ID         flexID         `json:"id"`
	EntityID   string         `json:"entity_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Room       string         `json:"room"`
	RoomName   string         `json:"room_name"`
	IsOn       bool           `json:"isOn"`
	Value      any            `json:"value"`
	Unit       string         `json:"unit"`
	IsOnline   bool           `json:"isOnline"`
	Attributes map[string]any `json:"attributes"`
}

func (w wireDevice) toDevice() device.Device {
	room := strings.TrimSpace(w.Room)
	if room == "" {
		room = strings.TrimSpace(w.RoomName)
	}
	return device.Device{
		ID:         string(w.ID),
		EntityID:   w.EntityID,
		Name:       w.Name,
		Type:       device.Type(strings.ToLower(w.Type)),
		Room:       room,
		IsOn:       w.IsOn,
		Value:      w.Value,
		Unit:       w.Unit,
		IsOnline:   w.IsOnline,
		Attributes: w.Attributes,
	}
}

func toDevices(wire []wireDevice) []device.Device {
	out := make([]device.Device, len(wire))
	for i, w := range wire {
		out[i] = w.toDevice()
	}
	return out
}

type wireScene struct {
	ID       flexID `json:"id"`
	Name     string `json:"name"`
	EntityID string `json:"entity_id"`
	Type     string `json:"type"`
	Icon     string `json:"icon"`
}

func (w wireScene) toScene() device.Scene {
	return device.Scene{ID: string(w.ID), Name: w.Name, EntityID: w.EntityID, Type: w.Type, Icon: w.Icon}
}

type wireRoutine struct {
	ID          flexID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	IsActive    bool   `json:"is_active"`
}

func (w wireRoutine) toRoutine() device.Routine {
	return device.Routine{
		ID:          string(w.ID),
		Name:        w.Name,
		Description: w.Description,
		Icon:        w.Icon,
		Color:       w.Color,
		IsActive:    w.IsActive,
	}
}

type wireSyncReport struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Summary   device.SyncSummary `json:"summary"`
	Devices   []wireDevice       `json:"devices"`
}

// toReport converts the wire report. The backend's timestamp is ISO 8601,
// with or without a zone; an unparseable one is left zero.
func (w wireSyncReport) toReport() device.SyncReport {
	r := device.SyncReport{
		Status:  w.Status,
		Summary: w.Summary,
		Devices: toDevices(w.Devices),
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if ts, err := time.Parse(layout, w.Timestamp); err == nil {
			r.Timestamp = ts.UTC()
			break
		}
	}
	return r
}
