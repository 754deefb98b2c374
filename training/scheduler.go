package training

import (
	"fmt"
	"math"
)

// LRScheduler maps an epoch to a learning rate. Schedulers other than
// ReduceLROnPlateau are pure functions of their arguments.
type LRScheduler interface {
	GetLR(epoch int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// NewScheduler builds a scheduler by name with its default settings:
// "" or "constant", "step", "exp", "cosine" (annealing over epochs) or
// "plateau"
func NewScheduler(name string, epochs int) (LRScheduler, error) {
	switch name {
	case "", "constant":
		return &ConstantLRScheduler{}, nil
	case "step":
		return NewStepLRScheduler(30, 0.1), nil
	case "exp":
		return NewExponentialLRScheduler(0.95), nil
	case "cosine":
		return NewCosineAnnealingLRScheduler(epochs, 0), nil
	case "plateau":
		return NewReduceLROnPlateauScheduler(0.1, 10, 1e-4), nil
	}
	return nil, fmt.Errorf("unknown learning rate schedule %q", name)
}

// ConstantLRScheduler keeps the base learning rate
type ConstantLRScheduler struct{}

func (s *ConstantLRScheduler) GetLR(_ int, baseLR float64) float64 { return baseLR }

func (s *ConstantLRScheduler) GetName() string { return "ConstantLR" }

// StepLRScheduler multiplies the rate by Gamma every StepSize epochs
type StepLRScheduler struct {
	StepSize int
	Gamma    float64
}

// NewStepLRScheduler creates a step scheduler; invalid arguments fall back
// to 30 epochs and a factor of 0.1
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{StepSize: stepSize, Gamma: gamma}
}

func (s *StepLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch/s.StepSize))
}

func (s *StepLRScheduler) GetName() string { return "StepLR" }

// ExponentialLRScheduler multiplies the rate by Gamma every epoch
type ExponentialLRScheduler struct {
	Gamma float64
}

func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{Gamma: gamma}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLRScheduler) GetName() string { return "ExponentialLR" }

// CosineAnnealingLRScheduler anneals from the base rate to EtaMin over TMax
// epochs
type CosineAnnealingLRScheduler struct {
	TMax   int
	EtaMin float64
}

func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string { return "CosineAnnealingLR" }

// ReduceLROnPlateauScheduler cuts the rate by Factor once the observed loss
// has not improved by more than Threshold for Patience epochs
type ReduceLROnPlateauScheduler struct {
	Factor    float64
	Patience  int
	Threshold float64

	best        float64
	badEpochs   int
	scale       float64
	initialized bool
}

func NewReduceLROnPlateauScheduler(factor float64, patience int, threshold float64) *ReduceLROnPlateauScheduler {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	return &ReduceLROnPlateauScheduler{
		Factor:    factor,
		Patience:  patience,
		Threshold: threshold,
		scale:     1,
	}
}

// Observe records the loss of a finished epoch
func (s *ReduceLROnPlateauScheduler) Observe(loss float64) {
	if !s.initialized {
		s.best = loss
		s.initialized = true
		return
	}
	if loss < s.best-s.Threshold {
		s.best = loss
		s.badEpochs = 0
		return
	}
	s.badEpochs++
	if s.badEpochs >= s.Patience {
		s.scale *= s.Factor
		s.badEpochs = 0
	}
}

func (s *ReduceLROnPlateauScheduler) GetLR(_ int, baseLR float64) float64 {
	return baseLR * s.scale
}

func (s *ReduceLROnPlateauScheduler) GetName() string { return "ReduceLROnPlateau" }
