//go:build sqlite

package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	store, err := NewStore("sqlite", dbPath)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = CloseIfSupported(store)
	})

	run := Run{
		ID:           NewRunID(),
		Session:      "sessions/a",
		Optimizer:    "rms",
		LearningRate: 0.005,
		Channels:     2,
		VectorSize:   3,
		MemorySize:   4,
		Blueprint:    "[(2,4) (2,4) (1,3)]",
		StartedAt:    time.Unix(1700000000, 42),
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	loaded, ok, err := store.GetRun(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if loaded.Optimizer != run.Optimizer || !loaded.StartedAt.Equal(run.StartedAt) || loaded.Blueprint != run.Blueprint {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	steps := []StepRecord{
		{Step: 1, Epoch: 0, Loss: 0.25, LearningRate: 0.005, At: time.Unix(1700000001, 0)},
		{Step: 2, Epoch: 0, Loss: 0.2, LearningRate: 0.005, At: time.Unix(1700000002, 0)},
	}
	if err := store.AppendSteps(ctx, run.ID, steps); err != nil {
		t.Fatalf("append steps: %v", err)
	}
	got, ok, err := store.GetSteps(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("get steps: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[1].Loss != 0.2 {
		t.Fatalf("unexpected steps: %+v", got)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
}
