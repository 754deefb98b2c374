package optimizer

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-gstm/tensor"
)

const (
	stateExpAvg      = "exp_avg"
	stateExpAvgSq    = "exp_avg_sq"
	stateMaxExpAvgSq = "max_exp_avg_sq"
)

// AdamConfig holds configuration for the Adam optimizer
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
	AMSGrad      bool
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		AMSGrad:      false,
	}
}

func (c AdamConfig) validate() error {
	if c.LearningRate < 0 {
		return fmt.Errorf("invalid learning rate: %v", c.LearningRate)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("invalid betas: (%v, %v)", c.Beta1, c.Beta2)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("invalid epsilon: %v", c.Epsilon)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("invalid weight decay: %v", c.WeightDecay)
	}
	return nil
}

// Adam implements the Adam optimizer, optionally with the AMSGrad variant
type Adam struct {
	config    AdamConfig
	params    []*tensor.Tensor
	state     *buffers
	stepCount uint64
	scratch   []float64
	mutex     sync.RWMutex
}

// NewAdam creates a new Adam optimizer over params
func NewAdam(params []*tensor.Tensor, config AdamConfig) (*Adam, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Adam{
		config: config,
		params: params,
		state:  newBuffers(params, stateExpAvg, stateExpAvgSq, stateMaxExpAvgSq),
	}, nil
}

// Step performs a single optimization step
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.stepCount++
	cfg := adam.config

	// Bias correction factors
	bias1 := 1.0 - math.Pow(cfg.Beta1, float64(adam.stepCount))
	bias2 := 1.0 - math.Pow(cfg.Beta2, float64(adam.stepCount))
	stepSize := cfg.LearningRate / bias1
	bias2Sqrt := math.Sqrt(bias2)

	for i, param := range adam.params {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		if cap(adam.scratch) < param.NumElems {
			adam.scratch = make([]float64, param.NumElems)
		}
		g := adam.scratch[:param.NumElems]
		copy(g, param.Grad().Data)
		if cfg.WeightDecay != 0 {
			floats.AddScaled(g, cfg.WeightDecay, param.Data)
		}

		m := adam.state.ensure(stateExpAvg, i)
		v := adam.state.ensure(stateExpAvgSq, i)
		var vMax []float64
		if cfg.AMSGrad {
			vMax = adam.state.ensure(stateMaxExpAvgSq, i)
		}

		for j, gj := range g {
			m[j] = cfg.Beta1*m[j] + (1-cfg.Beta1)*gj
			v[j] = cfg.Beta2*v[j] + (1-cfg.Beta2)*gj*gj

			second := v[j]
			if vMax != nil {
				if second > vMax[j] {
					vMax[j] = second
				}
				second = vMax[j]
			}
			denom := math.Sqrt(second)/bias2Sqrt + cfg.Epsilon
			param.Data[j] -= stepSize * m[j] / denom
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.params)
}

// GetLR returns the current learning rate
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.config.LearningRate
}

// SetLR sets the learning rate
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.config.LearningRate = lr
}

// GetStepCount returns the number of steps taken
func (adam *Adam) GetStepCount() uint64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.stepCount
}

// Kind reports AdaptiveMoment
func (adam *Adam) Kind() Kind { return AdaptiveMoment }

// GetState extracts optimizer state for checkpointing
func (adam *Adam) GetState() (*State, error) {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()

	return &State{
		Type: AdaptiveMoment.String(),
		ParamGroups: []map[string]interface{}{{
			"lr":           adam.config.LearningRate,
			"betas":        []float64{adam.config.Beta1, adam.config.Beta2},
			"eps":          adam.config.Epsilon,
			"weight_decay": adam.config.WeightDecay,
			"amsgrad":      adam.config.AMSGrad,
		}},
		Step:      adam.stepCount,
		StateData: adam.state.snapshot(),
	}, nil
}

// LoadState restores optimizer state from a checkpoint
func (adam *Adam) LoadState(state *State) error {
	if err := validateStateType(AdaptiveMoment, state); err != nil {
		return err
	}

	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	group := firstGroup(state)
	beta1, beta2 := extractPairParam(group, "betas", adam.config.Beta1, adam.config.Beta2)
	cfg := AdamConfig{
		LearningRate: extractFloatParam(group, "lr", adam.config.LearningRate),
		Beta1:        beta1,
		Beta2:        beta2,
		Epsilon:      extractFloatParam(group, "eps", adam.config.Epsilon),
		WeightDecay:  extractFloatParam(group, "weight_decay", adam.config.WeightDecay),
		AMSGrad:      extractBoolParam(group, "amsgrad", adam.config.AMSGrad),
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid Adam state: %w", err)
	}
	if err := adam.state.restore(state.StateData); err != nil {
		return fmt.Errorf("failed to restore Adam state: %w", err)
	}
	adam.config = cfg
	adam.stepCount = state.Step
	return nil
}
