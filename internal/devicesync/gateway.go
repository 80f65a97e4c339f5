package devicesync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// recordTimeout bounds a journal write made after the caller's context
// may already be done.
const recordTimeout = 5 * time.Second

// optimisticWrite pairs the value a mutation replaced with the value it
// wrote, so a rollback can tell whether the slot is still its own.
type optimisticWrite struct {
	prev *device.Device
	next *device.Device
	gen  uint64
}

// refresher asks for an out-of-band poll.
type refresher interface {
	RequestRefresh()
}

// Gateway applies user mutations optimistically and settles them against
// the backend.
//
// Optimistic writes and rollbacks run under the shared step mutex so they
// never interleave with a merge. The network call runs outside it.
// Mutations are never retried.
type Gateway struct {
	step    *sync.Mutex
	store   *Store
	tracker *Tracker
	remote  RemoteDeviceSource
	ttl     time.Duration
	refresh refresher

	recorder Recorder
	onAuth   func(error)
	logger   Logger
	metrics  *Metrics
}

// ToggleSingle sets one device on or off.
func (g *Gateway) ToggleSingle(ctx context.Context, id string, on bool) error {
	const op = "toggle"

	if strings.TrimSpace(id) == "" {
		return &ValidationError{Op: op, Reason: "device id is blank", Err: ErrBlankID}
	}

	mutationID := uuid.NewString()
	started := g.tracker.Now()

	writes, err := g.writeOptimistic(op, []string{id}, on)
	if err != nil {
		return err
	}

	g.logger.Debug("toggle sent", "mutation_id", mutationID, "device_id", id, "is_on", on)

	if _, err := g.remote.SetState(ctx, id, on); err != nil {
		g.rollback(writes)
		g.notifyAuth(err)
		g.settle(ctx, MutationToggle, mutationID, []string{id}, &on, started, OutcomeRolledBack, err)
		g.logger.Warn("toggle failed, rolled back", "mutation_id", mutationID, "device_id", id, "error", err)
		return &MutationError{Op: op, MutationID: mutationID, IDs: []string{id}, Err: err}
	}

	g.settle(ctx, MutationToggle, mutationID, []string{id}, &on, started, OutcomeApplied, nil)
	return nil
}

// BatchToggle sets several devices on or off as one request. Either every
// optimistic value is visible or none is.
func (g *Gateway) BatchToggle(ctx context.Context, ids []string, on bool) error {
	const op = "batch toggle"

	unique, err := normaliseBatch(ids)
	if err != nil {
		return &ValidationError{Op: op, Reason: err.Error(), Err: ErrEmptyBatch}
	}

	mutationID := uuid.NewString()
	started := g.tracker.Now()

	writes, err := g.writeOptimistic(op, unique, on)
	if err != nil {
		return err
	}

	g.logger.Debug("batch toggle sent", "mutation_id", mutationID, "devices", len(unique), "is_on", on)

	if _, err := g.remote.BatchSetState(ctx, unique, on); err != nil {
		g.rollback(writes)
		g.refresh.RequestRefresh()
		g.notifyAuth(err)
		g.settle(ctx, MutationBatchToggle, mutationID, unique, &on, started, OutcomeRolledBack, err)
		g.logger.Warn("batch toggle failed, rolled back", "mutation_id", mutationID, "devices", unique, "error", err)
		return &MutationError{Op: op, MutationID: mutationID, IDs: unique, Err: err}
	}

	g.settle(ctx, MutationBatchToggle, mutationID, unique, &on, started, OutcomeApplied, nil)
	return nil
}

// ExecuteScene triggers a scene. There is no optimistic write; a refresh
// is requested either way so the scene's effects show up promptly.
func (g *Gateway) ExecuteScene(ctx context.Context, id string) error {
	return g.execute(ctx, "execute scene", MutationScene, id, g.remote.TriggerScene)
}

// ExecuteRoutine triggers a routine, with the same contract as
// ExecuteScene.
func (g *Gateway) ExecuteRoutine(ctx context.Context, id string) error {
	return g.execute(ctx, "execute routine", MutationRoutine, id, g.remote.TriggerRoutine)
}

func (g *Gateway) execute(ctx context.Context, op string, kind MutationKind, id string, trigger func(context.Context, string) error) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Op: op, Reason: "id is blank", Err: ErrBlankID}
	}
	if g.store.Closed() {
		return ErrClosed
	}

	mutationID := uuid.NewString()
	started := g.tracker.Now()

	err := trigger(ctx, id)
	g.refresh.RequestRefresh()

	if err != nil {
		g.notifyAuth(err)
		g.settle(ctx, kind, mutationID, []string{id}, nil, started, OutcomeFailed, err)
		g.logger.Warn(op+" failed", "mutation_id", mutationID, "id", id, "error", err)
		return &MutationError{Op: op, MutationID: mutationID, IDs: []string{id}, Err: err}
	}

	g.settle(ctx, kind, mutationID, []string{id}, nil, started, OutcomeApplied, nil)
	g.logger.Info(op, "mutation_id", mutationID, "id", id)
	return nil
}

// writeOptimistic validates ids against the view and, in one step, writes
// IsOn=on to each and marks each pending.
func (g *Gateway) writeOptimistic(op string, ids []string, on bool) ([]optimisticWrite, error) {
	g.step.Lock()
	defer g.step.Unlock()

	if g.store.Closed() {
		return nil, ErrClosed
	}

	writes := make([]optimisticWrite, 0, len(ids))
	for _, id := range ids {
		prev := g.store.lookup(id)
		if prev == nil {
			return nil, &ValidationError{
				Op:     op,
				Reason: fmt.Sprintf("unknown device %q", id),
				Err:    fmt.Errorf("%w: %s", ErrUnknownDevice, id),
			}
		}
		next := prev.DeepCopy()
		next.IsOn = on
		writes = append(writes, optimisticWrite{prev: prev, next: next})
	}

	nexts := make([]*device.Device, len(writes))
	for i := range writes {
		_, writes[i].gen = g.tracker.mark(writes[i].next.ID, g.ttl)
		nexts[i] = writes[i].next
	}
	g.store.put(nexts...)
	g.metrics.setPending(g.tracker.Len())

	return writes, nil
}

// rollback restores previous values and releases this mutation's pending
// entries, in one step. Devices removed in the meantime stay removed.
func (g *Gateway) rollback(writes []optimisticWrite) {
	g.step.Lock()
	defer g.step.Unlock()

	g.store.revert(writes)
	for _, w := range writes {
		g.tracker.release(w.next.ID, w.gen)
	}
	g.metrics.setPending(g.tracker.Len())
}

func (g *Gateway) notifyAuth(err error) {
	if g.onAuth != nil && IsAuthError(err) {
		g.onAuth(err)
	}
}

// settle counts the outcome and writes the journal entry if a recorder is
// configured.
func (g *Gateway) settle(ctx context.Context, kind MutationKind, mutationID string, targets []string, desired *bool, started time.Time, outcome Outcome, cause error) {
	g.metrics.mutation(kind, outcome)

	if g.recorder == nil {
		return
	}

	rec := MutationRecord{
		ID:        mutationID,
		Kind:      kind,
		Targets:   targets,
		Desired:   desired,
		Outcome:   outcome,
		StartedAt: started,
		SettledAt: g.tracker.Now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := g.recorder.RecordMutation(recCtx, rec); err != nil {
		g.logger.Error("recording mutation", "mutation_id", mutationID, "error", err)
	}
}

// normaliseBatch rejects empty batches and blank ids and collapses
// duplicates, keeping first-seen order.
func normaliseBatch(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no device ids given")
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("blank device id in batch")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
