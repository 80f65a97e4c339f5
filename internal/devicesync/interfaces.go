package devicesync

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// RemoteDeviceSource is the authoritative backend.
//
// Implementations return *AuthError for refused credentials and
// *NetworkError for anything else that went wrong on the wire.
type RemoteDeviceSource interface {
	// FetchAll returns the complete device list. Ids absent from it no
	// longer exist.
	FetchAll(ctx context.Context) ([]device.Device, error)

	SetState(ctx context.Context, id string, on bool) (*device.Device, error)
	BatchSetState(ctx context.Context, ids []string, on bool) ([]device.Device, error)
	TriggerScene(ctx context.Context, id string) error
	TriggerRoutine(ctx context.Context, id string) error
}

// CatalogSource is implemented by sources that can list scenes and
// routines. When present the catalog is refreshed on every poll.
type CatalogSource interface {
	ListScenes(ctx context.Context) ([]device.Scene, error)
	ListRoutines(ctx context.Context) ([]device.Routine, error)
}

// BackendSyncer is implemented by sources that can ask the backend to
// re-import its devices.
type BackendSyncer interface {
	SyncDevices(ctx context.Context) (*device.SyncReport, error)
}

// Logger is the logging surface the synchronizer needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MutationKind names what a mutation did.
type MutationKind string

// Mutation kinds.
const (
	MutationToggle      MutationKind = "toggle"
	MutationBatchToggle MutationKind = "batch_toggle"
	MutationScene       MutationKind = "scene"
	MutationRoutine     MutationKind = "routine"
)

// Outcome is how a mutation settled.
type Outcome string

// Mutation outcomes. Toggles that fail are rolled back; scenes and
// routines have nothing to roll back and simply fail.
const (
	OutcomeApplied    Outcome = "applied"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeFailed     Outcome = "failed"
)

// MutationRecord describes one settled mutation for the journal.
type MutationRecord struct {
	ID        string       `json:"id"`
	Kind      MutationKind `json:"kind"`
	Targets   []string     `json:"targets"`
	Desired   *bool        `json:"desired,omitempty"`
	Outcome   Outcome      `json:"outcome"`
	Error     string       `json:"error,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	SettledAt time.Time    `json:"settled_at"`
}

// SyncRecord describes one backend re-import.
type SyncRecord struct {
	Status  string             `json:"status"`
	RanAt   time.Time          `json:"ran_at"`
	Summary device.SyncSummary `json:"summary"`
}

// Recorder persists mutation and sync history. Recording failures are
// logged and never fail the mutation.
type Recorder interface {
	RecordMutation(ctx context.Context, rec MutationRecord) error
	RecordSync(ctx context.Context, rec SyncRecord) error
}

// Catalog is the last successfully fetched list of scenes and routines.
type Catalog struct {
	Scenes   []device.Scene   `json:"scenes"`
	Routines []device.Routine `json:"routines"`
}
