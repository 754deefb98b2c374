package optimizer

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-gstm/tensor"
)

// the momentum buffer reuses stateMomentum
const (
	stateSquareAvg = "square_avg"
	stateGradAvg   = "grad_avg"
)

// RMSPropConfig holds configuration for RMSProp optimizer
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64 // Smoothing constant
	Epsilon      float64
	WeightDecay  float64
	Momentum     float64
	Centered     bool // Normalize by an estimate of the gradient variance
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
		Centered:     false,
	}
}

func (c RMSPropConfig) validate() error {
	if c.LearningRate < 0 {
		return fmt.Errorf("invalid learning rate: %v", c.LearningRate)
	}
	if c.Alpha < 0 {
		return fmt.Errorf("invalid alpha: %v", c.Alpha)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("invalid epsilon: %v", c.Epsilon)
	}
	if c.Momentum < 0 {
		return fmt.Errorf("invalid momentum: %v", c.Momentum)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("invalid weight decay: %v", c.WeightDecay)
	}
	return nil
}

// RMSProp scales each update by a running average of squared gradients
type RMSProp struct {
	config    RMSPropConfig
	params    []*tensor.Tensor
	state     *buffers
	stepCount uint64
	scratch   []float64
	mutex     sync.RWMutex
}

// NewRMSProp creates a new RMSProp optimizer over params
func NewRMSProp(params []*tensor.Tensor, config RMSPropConfig) (*RMSProp, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &RMSProp{
		config: config,
		params: params,
		state:  newBuffers(params, stateSquareAvg, stateMomentum, stateGradAvg),
	}, nil
}

// Step performs a single optimization step
func (rms *RMSProp) Step() error {
	rms.mutex.Lock()
	defer rms.mutex.Unlock()

	cfg := rms.config
	for i, param := range rms.params {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		if cap(rms.scratch) < param.NumElems {
			rms.scratch = make([]float64, param.NumElems)
		}
		g := rms.scratch[:param.NumElems]
		copy(g, param.Grad().Data)
		if cfg.WeightDecay != 0 {
			floats.AddScaled(g, cfg.WeightDecay, param.Data)
		}

		sq := rms.state.ensure(stateSquareAvg, i)
		var gAvg, buf []float64
		if cfg.Centered {
			gAvg = rms.state.ensure(stateGradAvg, i)
		}
		if cfg.Momentum > 0 {
			buf = rms.state.ensure(stateMomentum, i)
		}

		for j, gj := range g {
			sq[j] = cfg.Alpha*sq[j] + (1-cfg.Alpha)*gj*gj

			variance := sq[j]
			if gAvg != nil {
				gAvg[j] = cfg.Alpha*gAvg[j] + (1-cfg.Alpha)*gj
				variance -= gAvg[j] * gAvg[j]
			}
			avg := math.Sqrt(variance) + cfg.Epsilon

			if buf != nil {
				buf[j] = cfg.Momentum*buf[j] + gj/avg
				param.Data[j] -= cfg.LearningRate * buf[j]
			} else {
				param.Data[j] -= cfg.LearningRate * gj / avg
			}
		}
	}
	rms.stepCount++
	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (rms *RMSProp) ZeroGrad() {
	tensor.ZeroGrad(rms.params)
}

// GetLR returns the current learning rate
func (rms *RMSProp) GetLR() float64 {
	rms.mutex.RLock()
	defer rms.mutex.RUnlock()
	return rms.config.LearningRate
}

// SetLR sets the learning rate
func (rms *RMSProp) SetLR(lr float64) {
	rms.mutex.Lock()
	defer rms.mutex.Unlock()
	rms.config.LearningRate = lr
}

// GetStepCount returns the number of steps taken
func (rms *RMSProp) GetStepCount() uint64 {
	rms.mutex.RLock()
	defer rms.mutex.RUnlock()
	return rms.stepCount
}

// Kind reports RMSScaled
func (rms *RMSProp) Kind() Kind { return RMSScaled }

// GetState extracts optimizer state for checkpointing
func (rms *RMSProp) GetState() (*State, error) {
	rms.mutex.RLock()
	defer rms.mutex.RUnlock()

	return &State{
		Type: RMSScaled.String(),
		ParamGroups: []map[string]interface{}{{
			"lr":           rms.config.LearningRate,
			"alpha":        rms.config.Alpha,
			"eps":          rms.config.Epsilon,
			"weight_decay": rms.config.WeightDecay,
			"momentum":     rms.config.Momentum,
			"centered":     rms.config.Centered,
		}},
		Step:      rms.stepCount,
		StateData: rms.state.snapshot(),
	}, nil
}

// LoadState restores optimizer state from a checkpoint
func (rms *RMSProp) LoadState(state *State) error {
	if err := validateStateType(RMSScaled, state); err != nil {
		return err
	}

	rms.mutex.Lock()
	defer rms.mutex.Unlock()

	group := firstGroup(state)
	cfg := RMSPropConfig{
		LearningRate: extractFloatParam(group, "lr", rms.config.LearningRate),
		Alpha:        extractFloatParam(group, "alpha", rms.config.Alpha),
		Epsilon:      extractFloatParam(group, "eps", rms.config.Epsilon),
		WeightDecay:  extractFloatParam(group, "weight_decay", rms.config.WeightDecay),
		Momentum:     extractFloatParam(group, "momentum", rms.config.Momentum),
		Centered:     extractBoolParam(group, "centered", rms.config.Centered),
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid RMSProp state: %w", err)
	}
	if err := rms.state.restore(state.StateData); err != nil {
		return fmt.Errorf("failed to restore RMSProp state: %w", err)
	}
	rms.config = cfg
	rms.stepCount = state.Step
	return nil
}
