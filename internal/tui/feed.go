package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
)

// stateMsg carries a store state into the program.
type stateMsg devicesync.State

// feed bridges store notifications into bubbletea. The store calls its
// listener synchronously, so the listener only swaps the newest state into
// a one-slot mailbox and never blocks.
type feed struct {
	ready chan struct{}

	mu     sync.Mutex
	latest *devicesync.State

	unsubscribe func()
	closeOnce   sync.Once
	done        chan struct{}
}

func newFeed(src Source) *feed {
	f := &feed{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	f.unsubscribe = src.Subscribe(f.offer)
	return f
}

func (f *feed) offer(st devicesync.State) {
	f.mu.Lock()
	f.latest = &st
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// next is a tea.Cmd that waits for the next state. It returns nil once the
// feed is closed, which bubbletea ignores.
func (f *feed) next() tea.Msg {
	for {
		select {
		case <-f.ready:
		case <-f.done:
			return nil
		}

		f.mu.Lock()
		st := f.latest
		f.latest = nil
		f.mu.Unlock()

		// A signal can outlive the state it announced when a later offer
		// was already taken.
		if st != nil {
			return stateMsg(*st)
		}
	}
}

func (f *feed) close() {
	f.closeOnce.Do(func() {
		f.unsubscribe()
		close(f.done)
	})
}
