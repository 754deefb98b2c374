package optimizer

import (
	"fmt"

	"github.com/tsawler/go-gstm/tensor"
)

// Kind enumerates the supported optimizer variants
type Kind int

const (
	PlainDescent   Kind = iota // SGD
	AdaptiveMoment             // Adam
	RMSScaled                  // RMSprop
)

var kindTags = [...]string{
	PlainDescent:   "sgd",
	AdaptiveMoment: "adam",
	RMSScaled:      "rms",
}

// String returns the tag persisted with the optimizer state
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindTags) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindTags[k]
}

// ParseKind maps a selector tag to a Kind. "adam" and "rms" select the
// adaptive variants; anything else, including "", selects plain descent.
func ParseKind(tag string) Kind {
	switch tag {
	case "adam":
		return AdaptiveMoment
	case "rms":
		return RMSScaled
	}
	return PlainDescent
}

// InferKind guesses the variant of an untagged state from the keys of its
// first parameter group
func InferKind(group map[string]interface{}) Kind {
	if _, ok := group["dampening"]; ok {
		return PlainDescent
	}
	if _, ok := group["alpha"]; ok {
		return RMSScaled
	}
	if _, ok := group["amsgrad"]; ok {
		return AdaptiveMoment
	}
	return PlainDescent
}

// Optimizer updates a fixed list of parameter tensors from their
// accumulated gradients
type Optimizer interface {
	// Step applies one update to every parameter that has a gradient
	Step() error

	// ZeroGrad clears the gradients of all parameters
	ZeroGrad()

	GetLR() float64
	SetLR(lr float64)

	// GetStepCount returns the number of steps taken so far
	GetStepCount() uint64

	// Kind reports the variant
	Kind() Kind

	// GetState snapshots hyperparameters and running state for checkpointing
	GetState() (*State, error)

	// LoadState replaces hyperparameters and running state wholesale
	LoadState(state *State) error
}

// State is the serializable form of an optimizer
type State struct {
	Type        string                   `json:"type,omitempty"`
	ParamGroups []map[string]interface{} `json:"param_groups"`
	Step        uint64                   `json:"step"`
	StateData   []Tensor                 `json:"state"`
}

// Tensor is one running buffer, e.g. a momentum or second moment estimate
type Tensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float64 `json:"data"`
	StateType string    `json:"state_type"`
}

// Kind resolves the variant of a state: the explicit tag when present,
// otherwise inference from the first parameter group
func (s *State) Kind() Kind {
	if s.Type != "" {
		return ParseKind(s.Type)
	}
	if len(s.ParamGroups) == 0 {
		return PlainDescent
	}
	return InferKind(s.ParamGroups[0])
}

// New builds an optimizer of the given kind with default hyperparameters
// and learning rate lr
func New(kind Kind, params []*tensor.Tensor, lr float64) (Optimizer, error) {
	switch kind {
	case PlainDescent:
		cfg := DefaultSGDConfig()
		cfg.LearningRate = lr
		return NewSGD(params, cfg)
	case AdaptiveMoment:
		cfg := DefaultAdamConfig()
		cfg.LearningRate = lr
		return NewAdam(params, cfg)
	case RMSScaled:
		cfg := DefaultRMSPropConfig()
		cfg.LearningRate = lr
		return NewRMSProp(params, cfg)
	}
	return nil, fmt.Errorf("unknown optimizer kind %v", kind)
}
