package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-gstm/blueprint"
	"github.com/tsawler/go-gstm/device"
	"github.com/tsawler/go-gstm/optimizer"
	"github.com/tsawler/go-gstm/runlog"
	"github.com/tsawler/go-gstm/training"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:], stderr)
	case "runs":
		return runRuns(ctx, args[1:], stdout)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gstm-train <train|runs> [flags]", msg)
}

type storeFlags struct {
	kind *string
	path *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind: fs.String("store", "memory", "run log backend: memory or sqlite"),
		path: fs.String("db", "gstm.db", "sqlite database path"),
	}
}

func (f storeFlags) open(ctx context.Context) (runlog.Store, error) {
	store, err := runlog.NewStore(*f.kind, *f.path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = runlog.CloseIfSupported(store)
		return nil, err
	}
	return store, nil
}

func runTrain(ctx context.Context, args []string, stderr io.Writer) (err error) {
	defaults := training.DefaultTrainerConfig()
	data := training.DefaultDataConfig(defaults.Model.Channels, defaults.Model.VectorSize)

	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	channels := fs.Int("channels", defaults.Model.Channels, "independent input channels")
	vector := fs.Int("vector", defaults.Model.VectorSize, "width of each channel's vector")
	memory := fs.Int("memory", defaults.Model.MemorySize, "memory size of the network")
	layout := fs.String("blueprint", "", `custom blueprint, e.g. "[(6,10) (6,10) (3,5)]"`)
	lr := fs.Float64("lr", defaults.LearningRate, "learning rate")
	opt := fs.String("optimizer", optimizer.PlainDescent.String(), "optimizer: sgd, adam or rms")
	schedule := fs.String("schedule", defaults.Schedule, "learning rate schedule: constant, step, exp, cosine or plateau")
	epochs := fs.Int("epochs", defaults.Epochs, "passes over the dataset")
	steps := fs.Int("steps", 0, "stop after this many optimizer steps (0 = no limit)")
	minLen := fs.Int("min-len", data.MinLength, "minimum sequence length")
	maxLen := fs.Int("max-len", data.MaxLength, "maximum sequence length")
	samples := fs.Int("samples", data.Count, "number of generated samples")
	session := fs.String("session", "session", "session directory (empty disables saving)")
	fresh := fs.Bool("fresh", false, "ignore an existing session")
	saveEvery := fs.Int("save-every", 0, "also save every N steps")
	seed := fs.Int64("seed", 0, "random seed (0 = clock)")
	verbose := fs.Bool("v", false, "log every step")
	stores := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	bp, err := blueprint.Parse(*layout)
	if err != nil {
		return fmt.Errorf("invalid -blueprint: %w", err)
	}

	cfg := defaults
	cfg.Model = training.ModelConfig{
		Channels:   *channels,
		VectorSize: *vector,
		MemorySize: *memory,
		Blueprint:  bp,
		Seed:       *seed,
	}
	cfg.Optimizer = optimizer.ParseKind(*opt)
	cfg.LearningRate = *lr
	cfg.Schedule = *schedule
	cfg.Epochs = *epochs
	cfg.MaxSteps = *steps
	cfg.Seed = *seed
	cfg.Session = *session
	cfg.Resume = !*fresh
	cfg.SaveEvery = *saveEvery

	var rng *rand.Rand
	if *seed != 0 {
		rng = rand.New(rand.NewSource(*seed))
	}
	ds, err := training.MakeData(*channels, *vector, *minLen, *maxLen, *samples, rng)
	if err != nil {
		return err
	}

	store, err := stores.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := runlog.CloseIfSupported(store); cerr != nil && err == nil {
			err = cerr
		}
	}()

	dev := device.Detect()
	trainer, err := training.NewTrainer(dev, cfg, store, logger)
	if err != nil {
		return err
	}

	history, err := trainer.Train(ctx, ds)
	if errors.Is(err, context.Canceled) {
		logger.Warn("Training interrupted, session saved")
		err = nil
	}
	if err != nil {
		return err
	}

	metrics, err := training.Evaluate(trainer.Model(), ds)
	if err != nil {
		return err
	}
	fields := logrus.Fields{
		"run_id": trainer.RunID(),
		"epochs": len(history),
		"mse":    metrics.MSE,
		"mae":    metrics.MAE,
		"r2":     metrics.R2,
	}
	if n := len(history); n > 0 {
		fields["loss"] = history[n-1].Loss
	}
	logger.WithFields(fields).Info("Training finished")
	return nil
}

func runRuns(ctx context.Context, args []string, stdout io.Writer) (err error) {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	id := fs.String("id", "", "show the step history of one run")
	stores := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := stores.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := runlog.CloseIfSupported(store); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if *id != "" {
		steps, ok, err := store.GetSteps(ctx, *id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run not found: %s", *id)
		}
		for _, s := range steps {
			fmt.Fprintf(stdout, "step=%d epoch=%d loss=%.6f lr=%g\n", s.Step, s.Epoch, s.Loss, s.LearningRate)
		}
		return nil
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "%s started=%s optimizer=%s lr=%g channels=%d vector=%d memory=%d resumed=%t blueprint=%s\n",
			r.ID, r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"), r.Optimizer, r.LearningRate,
			r.Channels, r.VectorSize, r.MemorySize, r.Resumed, r.Blueprint)
	}
	return nil
}
