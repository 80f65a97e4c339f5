package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the config leaves topic_prefix empty.
const DefaultTopicPrefix = "dashsync"

// Command actions carried under {prefix}/command/.
const (
	CommandRefresh = "refresh"
	CommandToggle  = "toggle"
	CommandScene   = "scene"
	CommandRoutine = "routine"
)

// Topics builds dashsync topic names under a configurable prefix.
//
//	topics := mqtt.NewTopics("home/dash")
//	topics.DeviceState("light-1") // "home/dash/state/light-1"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed
// and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root every topic hangs off.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// DeviceState is the retained per-device state topic.
//
// Example: dashsync/state/light-1
func (t Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", t.Prefix(), deviceID)
}

// AllDeviceStates matches every device state topic.
func (t Topics) AllDeviceStates() string {
	return t.Prefix() + "/state/+"
}

// SystemStatus carries online/offline status and the LWT.
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// Refresh is the forced-poll command topic.
func (t Topics) Refresh() string {
	return t.Prefix() + "/command/" + CommandRefresh
}

// Toggle is the command topic for switching one device.
func (t Topics) Toggle(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.Prefix(), CommandToggle, deviceID)
}

// Scene is the command topic for executing a scene.
func (t Topics) Scene(sceneID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.Prefix(), CommandScene, sceneID)
}

// Routine is the command topic for executing a routine.
func (t Topics) Routine(routineID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.Prefix(), CommandRoutine, routineID)
}

// AllCommands matches every command topic.
func (t Topics) AllCommands() string {
	return t.Prefix() + "/command/#"
}

// ParseCommand splits a command topic into its action and target id.
// The refresh command has no target. ok is false for topics outside
// {prefix}/command/ or with a missing or extra segment.
func (t Topics) ParseCommand(topic string) (action, target string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/command/")
	if !found || rest == "" {
		return "", "", false
	}

	action, target, hasTarget := strings.Cut(rest, "/")
	switch action {
	case CommandRefresh:
		return action, "", !hasTarget
	case CommandToggle, CommandScene, CommandRoutine:
		if !hasTarget || target == "" || strings.Contains(target, "/") {
			return "", "", false
		}
		return action, target, true
	default:
		return "", "", false
	}
}
