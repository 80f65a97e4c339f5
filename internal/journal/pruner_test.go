package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruneable struct {
	mu    sync.Mutex
	calls []time.Duration
	n     int64
	err   error
}

func (f *fakePruneable) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	return f.n, f.err
}

func TestNewPruner_Validation(t *testing.T) {
	tests := []struct {
		name      string
		schedule  string
		retention time.Duration
		wantErr   bool
	}{
		{"descriptor", "@hourly", time.Hour, false},
		{"five field", "*/15 * * * *", time.Hour, false},
		{"bad schedule", "every hour", time.Hour, true},
		{"zero retention", "@hourly", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPruner(&fakePruneable{}, tt.schedule, tt.retention, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPruner() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPruner_PruneNow(t *testing.T) {
	target := &fakePruneable{n: 4}
	p, err := NewPruner(target, "@daily", 7*24*time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	removed, err := p.PruneNow(context.Background())
	if err != nil || removed != 4 {
		t.Errorf("PruneNow() = %d, %v", removed, err)
	}
	if len(target.calls) != 1 || target.calls[0] != 7*24*time.Hour {
		t.Errorf("calls = %v", target.calls)
	}

	target.err = errors.New("disk full")
	if _, err := p.PruneNow(context.Background()); err == nil {
		t.Error("PruneNow() should surface the error")
	}
}

func TestPruner_StartStop(t *testing.T) {
	p, err := NewPruner(&fakePruneable{}, "@hourly", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	p.Stop() // not started
	p.Start()
	p.Start()

	done := make(chan struct{})
	go func() {
		p.Stop()
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestPruner_RealRepository(t *testing.T) {
	repo := newTestRepo(t)
	p, err := NewPruner(repo, "@hourly", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	if removed, err := p.PruneNow(context.Background()); err != nil || removed != 0 {
		t.Errorf("PruneNow() on empty journal = %d, %v", removed, err)
	}
}
