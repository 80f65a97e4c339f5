// Package tui is the interactive terminal dashboard.
//
// It is a bubbletea program fed by store subscriptions rather than by
// polling: the synchronizer's own poller keeps the view fresh and every
// commit is pushed into the program through a one-slot mailbox. Toggles go
// through the synchronizer, so the optimistic value shows immediately and
// a failed write visibly snaps back.
package tui

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
)

// actionTimeout bounds each mutation started from the keyboard.
const actionTimeout = 30 * time.Second

const clockInterval = time.Second

// Source is the part of *devicesync.Synchronizer the dashboard uses.
type Source interface {
	State() devicesync.State
	Subscribe(fn devicesync.Listener) (unsubscribe func())
	IsPending(id string) bool

	ToggleDevice(ctx context.Context, id string, on bool) error
	BatchToggle(ctx context.Context, ids []string, on bool) error
	RefreshNow(ctx context.Context) error
}

// tickMsg redraws pending markers and the clock.
type tickMsg time.Time

// resultMsg reports a finished action.
type resultMsg struct {
	what string
	err  error
}

// Model is the top-level bubbletea model.
type Model struct {
	src   Source
	feed  *feed
	title string

	devices   []device.Device
	loading   bool
	cursor    int
	selected  string
	status    string
	err       error
	lastState time.Time
	now       time.Time

	width  int
	height int
}

// New subscribes to src and returns the model. Call Close when the program
// exits.
func New(src Source, title string) Model {
	m := Model{
		src:   src,
		feed:  newFeed(src),
		title: title,
		now:   time.Now(),
	}
	return m.withState(src.State())
}

// Close unsubscribes from the store and releases the pending wait.
func (m Model) Close() {
	m.feed.close()
}

// Init starts the state listener and the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.feed.next, tick())
}

func tick() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update processes messages and returns an updated model plus any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		m = m.withState(devicesync.State(msg))
		m.lastState = m.now
		return m, m.feed.next

	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()

	case resultMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.what, msg.err)
			m.status = ""
		} else {
			m.err = nil
			m.status = msg.what
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m = m.moveCursor(-1)
	case "down", "j":
		m = m.moveCursor(1)
	case " ", "space", "enter":
		d, ok := m.current()
		if !ok || !d.Type.Toggleable() {
			return m, nil
		}
		return m, m.toggle(d.ID, !d.IsOn)
	case "a":
		return m, m.roomToggle(true)
	case "o":
		return m, m.roomToggle(false)
	case "r":
		m.status = "refreshing…"
		m.err = nil
		return m, m.refresh()
	}
	return m, nil
}

// withState installs a new device list, ordered by room then name, and
// keeps the cursor on the same device when it still exists.
func (m Model) withState(st devicesync.State) Model {
	devices := slices.Clone(st.Devices)
	slices.SortStableFunc(devices, func(a, b device.Device) int {
		if c := cmp.Compare(strings.ToLower(a.Room), strings.ToLower(b.Room)); c != 0 {
			return c
		}
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	m.devices = devices
	m.loading = st.IsLoading

	if i := slices.IndexFunc(devices, func(d device.Device) bool { return d.ID == m.selected }); i >= 0 {
		m.cursor = i
	} else if m.cursor >= len(devices) {
		m.cursor = max(len(devices)-1, 0)
	}
	if d, ok := m.current(); ok {
		m.selected = d.ID
	}
	return m
}

func (m Model) moveCursor(delta int) Model {
	if len(m.devices) == 0 {
		return m
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.devices)-1)
	m.selected = m.devices[m.cursor].ID
	return m
}

func (m Model) current() (device.Device, bool) {
	if m.cursor < 0 || m.cursor >= len(m.devices) {
		return device.Device{}, false
	}
	return m.devices[m.cursor], true
}

// roomDevices returns the toggleable devices sharing the selected device's
// room.
func (m Model) roomDevices() (room string, ids []string) {
	d, ok := m.current()
	if !ok {
		return "", nil
	}
	for _, other := range m.devices {
		if strings.EqualFold(other.Room, d.Room) && other.Type.Toggleable() {
			ids = append(ids, other.ID)
		}
	}
	return d.Room, ids
}

func (m Model) toggle(id string, on bool) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return resultMsg{what: fmt.Sprintf("%s %s", id, onOff(on)), err: src.ToggleDevice(ctx, id, on)}
	}
}

func (m Model) roomToggle(on bool) tea.Cmd {
	room, ids := m.roomDevices()
	if len(ids) == 0 {
		return nil
	}
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		what := fmt.Sprintf("%s: %d devices %s", roomLabel(room), len(ids), onOff(on))
		return resultMsg{what: what, err: src.BatchToggle(ctx, ids, on)}
	}
}

func (m Model) refresh() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return resultMsg{what: "refreshed", err: src.RefreshNow(ctx)}
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func roomLabel(room string) string {
	if room == "" {
		return "(no room)"
	}
	return room
}
