package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const pruneTimeout = 30 * time.Second

// Logger is the logging surface the pruner needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Pruneable is anything that can drop rows older than a retention window.
type Pruneable interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Pruner runs Prune on a cron schedule.
type Pruner struct {
	target    Pruneable
	retention time.Duration
	logger    Logger
	cron      *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewPruner parses schedule (standard five-field cron or a descriptor
// such as "@hourly") and returns a stopped Pruner.
func NewPruner(target Pruneable, schedule string, retention time.Duration, logger Logger) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("journal: retention must be positive")
	}
	if logger == nil {
		logger = noopLogger{}
	}

	p := &Pruner{
		target:    target,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("journal: invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start begins the schedule. Calling Start twice is a no-op.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.cron.Start()
}

// Stop halts the schedule and waits for an in-flight prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	<-p.cron.Stop().Done()
}

// PruneNow runs one prune immediately.
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	removed, err := p.target.Prune(ctx, p.retention)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		p.logger.Info("journal pruned", "removed", removed, "retention", p.retention.String())
	}
	return removed, nil
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	if _, err := p.PruneNow(ctx); err != nil {
		p.logger.Error("journal prune failed", "error", err)
	}
}
