// Package runlog records the history of training runs: one Run per
// invocation of the trainer plus the loss reported at each optimizer step.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run describes one training invocation
type Run struct {
	ID           string
	Session      string
	Optimizer    string
	LearningRate float64
	Channels     int
	VectorSize   int
	MemorySize   int
	Blueprint    string
	Resumed      bool
	StartedAt    time.Time
}

// StepRecord is the outcome of a single optimizer step
type StepRecord struct {
	Step         int
	Epoch        int
	Loss         float64
	LearningRate float64
	At           time.Time
}

// Store persists runs and their step history. Implementations are safe for
// concurrent use.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	ListRuns(ctx context.Context) ([]Run, error)
	AppendSteps(ctx context.Context, runID string, steps []StepRecord) error
	GetSteps(ctx context.Context, runID string) ([]StepRecord, bool, error)
}

// NewRunID returns a fresh random run identifier
func NewRunID() string {
	return uuid.NewString()
}
