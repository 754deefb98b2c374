package optimizer

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-gstm/tensor"
)

const stateMomentum = "momentum_buffer"

// SGDConfig holds configuration for the SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	Dampening    float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		Dampening:    0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

func (c SGDConfig) validate() error {
	if c.LearningRate < 0 {
		return fmt.Errorf("invalid learning rate: %v", c.LearningRate)
	}
	if c.Momentum < 0 {
		return fmt.Errorf("invalid momentum: %v", c.Momentum)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("invalid weight decay: %v", c.WeightDecay)
	}
	if c.Nesterov && (c.Momentum <= 0 || c.Dampening != 0) {
		return fmt.Errorf("nesterov momentum requires a momentum and zero dampening")
	}
	return nil
}

// SGD implements stochastic gradient descent with optional momentum
type SGD struct {
	config    SGDConfig
	params    []*tensor.Tensor
	state     *buffers
	stepCount uint64
	scratch   []float64
	mutex     sync.RWMutex
}

// NewSGD creates a new SGD optimizer over params
func NewSGD(params []*tensor.Tensor, config SGDConfig) (*SGD, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &SGD{
		config: config,
		params: params,
		state:  newBuffers(params, stateMomentum),
	}, nil
}

// Step performs a single optimization step
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	cfg := sgd.config
	for i, param := range sgd.params {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		d := sgd.direction(param)
		if cfg.Momentum != 0 {
			buf := sgd.state.get(stateMomentum, i)
			if buf == nil {
				buf = sgd.state.ensure(stateMomentum, i)
				copy(buf, d)
			} else {
				// buf = momentum*buf + (1-dampening)*d
				floats.Scale(cfg.Momentum, buf)
				floats.AddScaled(buf, 1-cfg.Dampening, d)
			}
			if cfg.Nesterov {
				floats.AddScaled(d, cfg.Momentum, buf)
			} else {
				copy(d, buf)
			}
		}

		floats.AddScaled(param.Data, -cfg.LearningRate, d)
	}
	sgd.stepCount++
	return nil
}

// direction returns the gradient plus weight decay in a scratch slice
func (sgd *SGD) direction(param *tensor.Tensor) []float64 {
	if cap(sgd.scratch) < param.NumElems {
		sgd.scratch = make([]float64, param.NumElems)
	}
	d := sgd.scratch[:param.NumElems]
	copy(d, param.Grad().Data)
	if sgd.config.WeightDecay != 0 {
		floats.AddScaled(d, sgd.config.WeightDecay, param.Data)
	}
	return d
}

// ZeroGrad resets gradients to zero for all parameters
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.params)
}

// GetLR returns the current learning rate
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.config.LearningRate
}

// SetLR sets the learning rate
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.config.LearningRate = lr
}

// GetStepCount returns the number of steps taken
func (sgd *SGD) GetStepCount() uint64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.stepCount
}

// Kind reports PlainDescent
func (sgd *SGD) Kind() Kind { return PlainDescent }

// GetState extracts optimizer state for checkpointing
func (sgd *SGD) GetState() (*State, error) {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()

	return &State{
		Type: PlainDescent.String(),
		ParamGroups: []map[string]interface{}{{
			"lr":           sgd.config.LearningRate,
			"momentum":     sgd.config.Momentum,
			"dampening":    sgd.config.Dampening,
			"weight_decay": sgd.config.WeightDecay,
			"nesterov":     sgd.config.Nesterov,
		}},
		Step:      sgd.stepCount,
		StateData: sgd.state.snapshot(),
	}, nil
}

// LoadState restores optimizer state from a checkpoint
func (sgd *SGD) LoadState(state *State) error {
	if err := validateStateType(PlainDescent, state); err != nil {
		return err
	}

	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	group := firstGroup(state)
	cfg := SGDConfig{
		LearningRate: extractFloatParam(group, "lr", sgd.config.LearningRate),
		Momentum:     extractFloatParam(group, "momentum", sgd.config.Momentum),
		Dampening:    extractFloatParam(group, "dampening", sgd.config.Dampening),
		WeightDecay:  extractFloatParam(group, "weight_decay", sgd.config.WeightDecay),
		Nesterov:     extractBoolParam(group, "nesterov", sgd.config.Nesterov),
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid SGD state: %w", err)
	}
	if err := sgd.state.restore(state.StateData); err != nil {
		return fmt.Errorf("failed to restore SGD state: %w", err)
	}
	sgd.config = cfg
	sgd.stepCount = state.Step
	return nil
}
