package cleanup

import (
	"context"
	"testing"
	"time"
)

type fakePruner struct {
	createdAt []time.Time
	deleted   int64
	lastCut   time.Time
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.lastCut = cutoff
	var kept []time.Time
	for _, ts := range f.createdAt {
		if ts.Before(cutoff) {
			f.deleted++
			continue
		}
		kept = append(kept, ts)
	}
	f.createdAt = kept
	return f.deleted, nil
}

func TestRunPrunesOnlyStaleReadings(t *testing.T) {
	now := time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)
	retention := 30 * 24 * time.Hour

	pruner := &fakePruner{createdAt: []time.Time{
		now.Add(-31 * 24 * time.Hour),
		now.Add(-29 * 24 * time.Hour),
		now.Add(-time.Hour),
	}}

	job := New(pruner, retention, nil)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run cleanup job: %v", err)
	}

	if pruner.deleted != 1 {
		t.Fatalf("expected 1 pruned reading, got %d", pruner.deleted)
	}
	if len(pruner.createdAt) != 2 {
		t.Fatalf("expected 2 surviving readings, got %d", len(pruner.createdAt))
	}
	if want := now.Add(-retention); !pruner.lastCut.Equal(want) {
		t.Fatalf("unexpected cutoff: got %v want %v", pruner.lastCut, want)
	}
}

func TestRunWithoutStoreIsNoOp(t *testing.T) {
	job := New(nil, 0, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("nil store run: %v", err)
	}
}
