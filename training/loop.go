package training

import (
	"fmt"

	"github.com/tsawler/go-gstm/gstm"
	"github.com/tsawler/go-gstm/optimizer"
)

// Propagate is the forward pass: see Model.Forward
func Propagate(m *Model, input gstm.Sequence, timesteps int) (*gstm.Output, error) {
	return m.Forward(input, timesteps)
}

// MakeGrads computes the loss of out against target, back-propagates it into
// the parameter gradients and returns the scalar loss. Gradients accumulate
// until the optimizer clears them.
func MakeGrads(out *gstm.Output, target gstm.Sequence) (float64, error) {
	loss, err := gstm.Loss(out, target)
	if err != nil {
		return 0, fmt.Errorf("loss computation failed: %w", err)
	}
	if err := loss.Backward(); err != nil {
		return 0, fmt.Errorf("backward pass failed: %w", err)
	}
	return loss.Item()
}

// TakeAStep applies one optimizer update and clears the gradients
func TakeAStep(opt optimizer.Optimizer) error {
	if err := opt.Step(); err != nil {
		return fmt.Errorf("optimizer step failed: %w", err)
	}
	opt.ZeroGrad()
	return nil
}

// MakeOptimizer builds an optimizer of the given kind over the model's
// parameters
func MakeOptimizer(m *Model, lr float64, kind optimizer.Kind) (optimizer.Optimizer, error) {
	return optimizer.New(kind, m.Params, lr)
}
