package training

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-gstm/checkpoints"
	"github.com/tsawler/go-gstm/device"
	"github.com/tsawler/go-gstm/optimizer"
	"github.com/tsawler/go-gstm/runlog"
)

// TrainerConfig holds configuration for a training run
type TrainerConfig struct {
	Model        ModelConfig
	Optimizer    optimizer.Kind
	LearningRate float64
	Schedule     string // see NewScheduler

	Epochs   int
	MaxSteps int // Stop after this many optimizer steps (0 = no limit)
	Shuffle  bool
	Seed     int64 // Seeds sample order (0 = clock)

	// Session is the directory holding model.pkl and meta.pkl; empty
	// disables persistence
	Session   string
	Resume    bool // Continue from Session when it holds a model
	SaveEvery int  // Save every N steps in addition to the end of training (0 = end only)
}

// DefaultTrainerConfig returns a small configuration that trains in seconds
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Model: ModelConfig{
			Channels:   1,
			VectorSize: 4,
			MemorySize: 8,
		},
		Optimizer:    optimizer.PlainDescent,
		LearningRate: 0.01,
		Schedule:     "constant",
		Epochs:       1,
		Shuffle:      true,
		Resume:       true,
	}
}

// EpochMetrics summarizes one pass over the dataset
type EpochMetrics struct {
	Epoch        int
	Loss         float64 // Mean loss over the epoch's steps
	Steps        int
	LearningRate float64
	Duration     time.Duration
}

// Trainer runs the propagate, backward and step cycle over a dataset
type Trainer struct {
	config    TrainerConfig
	model     *Model
	opt       optimizer.Optimizer
	scheduler LRScheduler
	baseLR    float64
	resumed   bool

	store  runlog.Store
	runID  string
	logger *logrus.Logger
	steps  int
}

// NewTrainer assembles a model and optimizer, or restores them from the
// session directory when cfg.Resume is set and a session exists. store may
// be nil to skip run recording; it must already be initialized.
func NewTrainer(dev device.Device, cfg TrainerConfig, store runlog.Store, logger *logrus.Logger) (*Trainer, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}

	t := &Trainer{
		config: cfg,
		store:  store,
		runID:  runlog.NewRunID(),
		logger: logger,
	}

	if cfg.Resume && cfg.Session != "" {
		m, opt, err := LoadSessionOn(cfg.Session, dev)
		switch {
		case err == nil:
			t.model, t.opt, t.resumed = m, opt, true
			logger.WithFields(logrus.Fields{
				"session":   cfg.Session,
				"optimizer": opt.Kind().String(),
				"lr":        opt.GetLR(),
				"steps":     opt.GetStepCount(),
			}).Info("Resumed session")
		case checkpoints.IsNoSession(err):
			logger.WithFields(logrus.Fields{
				"session": cfg.Session,
				"reason":  err.Error(),
			}).Info("No usable session, starting fresh")
		default:
			return nil, err
		}
	}

	if t.model == nil {
		m, err := MakeModel(dev, cfg.Model)
		if err != nil {
			return nil, err
		}
		opt, err := MakeOptimizer(m, cfg.LearningRate, cfg.Optimizer)
		if err != nil {
			return nil, err
		}
		t.model, t.opt = m, opt
	}

	scheduler, err := NewScheduler(cfg.Schedule, cfg.Epochs)
	if err != nil {
		return nil, err
	}
	t.scheduler = scheduler
	t.baseLR = t.opt.GetLR()

	logger.WithFields(logrus.Fields{
		"run_id":     t.runID,
		"device":     dev.String(),
		"channels":   t.model.Network.Channels,
		"vector":     t.model.Network.VectorSize,
		"memory":     t.model.Network.MemorySize,
		"blueprint":  t.model.Network.Blueprint.String(),
		"parameters": t.model.ParameterCount(),
		"optimizer":  t.opt.Kind().String(),
		"schedule":   scheduler.GetName(),
	}).Info("Trainer ready")
	return t, nil
}

func (t *Trainer) Model() *Model                  { return t.model }
func (t *Trainer) Optimizer() optimizer.Optimizer { return t.opt }
func (t *Trainer) RunID() string                  { return t.runID }
func (t *Trainer) Resumed() bool                  { return t.resumed }

// Train runs up to cfg.Epochs passes over ds and saves the session at the
// end. Cancelling ctx stops training between samples; the session is still
// saved.
func (t *Trainer) Train(ctx context.Context, ds *Dataset) ([]EpochMetrics, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	if err := t.recordRun(ctx); err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if t.config.Seed != 0 {
		rng = rand.New(rand.NewSource(t.config.Seed))
	}
	loader := NewDataLoader(ds, t.config.Shuffle, rng)

	var (
		history []EpochMetrics
		runErr  error
	)
	for epoch := 0; epoch < t.config.Epochs && runErr == nil && !t.stepLimitReached(); epoch++ {
		var metrics EpochMetrics
		metrics, runErr = t.trainEpoch(ctx, loader, epoch)
		if metrics.Steps > 0 {
			history = append(history, metrics)
		}
	}

	if err := t.save(); err != nil && runErr == nil {
		runErr = err
	}
	return history, runErr
}

func (t *Trainer) trainEpoch(ctx context.Context, loader *DataLoader, epoch int) (EpochMetrics, error) {
	start := time.Now()
	lr := t.scheduler.GetLR(epoch, t.baseLR)
	t.opt.SetLR(lr)

	metrics := EpochMetrics{Epoch: epoch + 1, LearningRate: lr}
	var (
		records []runlog.StepRecord
		total   float64
		err     error
	)

	loader.Reset()
	for loader.HasNext() && !t.stepLimitReached() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}

		var sample Sample
		sample, err = loader.Next()
		if err != nil {
			break
		}

		var loss float64
		loss, err = t.trainStep(sample)
		if err != nil {
			err = fmt.Errorf("step %d: %w", t.steps+1, err)
			break
		}
		t.steps++
		total += loss
		metrics.Steps++
		records = append(records, runlog.StepRecord{
			Step:         t.steps,
			Epoch:        epoch + 1,
			Loss:         loss,
			LearningRate: lr,
			At:           time.Now(),
		})

		t.logger.WithFields(logrus.Fields{
			"step": t.steps,
			"loss": loss,
		}).Debug("Step completed")

		if t.config.SaveEvery > 0 && t.steps%t.config.SaveEvery == 0 {
			if err = t.save(); err != nil {
				break
			}
		}
	}

	if metrics.Steps > 0 {
		metrics.Loss = total / float64(metrics.Steps)
	}
	metrics.Duration = time.Since(start)

	if recErr := t.recordSteps(ctx, records); recErr != nil && err == nil {
		err = recErr
	}
	if plateau, ok := t.scheduler.(*ReduceLROnPlateauScheduler); ok && metrics.Steps > 0 {
		plateau.Observe(metrics.Loss)
	}

	t.logger.WithFields(logrus.Fields{
		"epoch":    metrics.Epoch,
		"loss":     metrics.Loss,
		"steps":    metrics.Steps,
		"lr":       lr,
		"duration": metrics.Duration,
	}).Info("Training epoch completed")
	return metrics, err
}

// trainStep runs the network for as many steps as the target holds, so
// the loss covers the whole target
func (t *Trainer) trainStep(sample Sample) (float64, error) {
	out, err := Propagate(t.model, sample.Input, len(sample.Target))
	if err != nil {
		return 0, err
	}
	loss, err := MakeGrads(out, sample.Target)
	if err != nil {
		return 0, err
	}
	if err := TakeAStep(t.opt); err != nil {
		return 0, err
	}
	return loss, nil
}

func (t *Trainer) stepLimitReached() bool {
	return t.config.MaxSteps > 0 && t.steps >= t.config.MaxSteps
}

func (t *Trainer) save() error {
	if t.config.Session == "" {
		return nil
	}
	if err := os.MkdirAll(t.config.Session, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := SaveSession(t.config.Session, t.model, t.opt); err != nil {
		return err
	}
	t.logger.WithFields(logrus.Fields{
		"session": t.config.Session,
		"step":    t.steps,
	}).Debug("Session saved")
	return nil
}

func (t *Trainer) recordRun(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	net := t.model.Network
	err := t.store.SaveRun(ctx, runlog.Run{
		ID:           t.runID,
		Session:      t.config.Session,
		Optimizer:    t.opt.Kind().String(),
		LearningRate: t.baseLR,
		Channels:     net.Channels,
		VectorSize:   net.VectorSize,
		MemorySize:   net.MemorySize,
		Blueprint:    net.Blueprint.String(),
		Resumed:      t.resumed,
		StartedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (t *Trainer) recordSteps(ctx context.Context, records []runlog.StepRecord) error {
	if t.store == nil || len(records) == 0 {
		return nil
	}
	// a cancelled run still records what it did
	if err := t.store.AppendSteps(context.WithoutCancel(ctx), t.runID, records); err != nil {
		return fmt.Errorf("failed to record steps: %w", err)
	}
	return nil
}
