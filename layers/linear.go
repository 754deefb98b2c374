package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-gstm/tensor"
)

// Module interface defines methods that all layers must implement
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor // Returns trainable parameters (tensors with requiresGrad=true)
}

// Linear implements a fully connected layer: y = xW + b
type Linear struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

// NewLinear creates a Linear layer with Xavier/Glorot uniform weights and
// zero bias
func NewLinear(inputSize, outputSize int, device tensor.DeviceType, rng *rand.Rand) (*Linear, error) {
	// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))

	weight, err := tensor.Uniform([]int{inputSize, outputSize}, -bound, bound, device, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %w", err)
	}
	weight.SetRequiresGrad(true)

	bias, err := tensor.Zeros([]int{1, outputSize}, device)
	if err != nil {
		return nil, fmt.Errorf("failed to create bias tensor: %w", err)
	}
	bias.SetRequiresGrad(true)

	return &Linear{weight: weight, bias: bias}, nil
}

// Forward performs the forward pass: y = xW + b
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("Linear layer expects 2D input [batch_size, input_size], got shape %v", input.Shape)
	}
	if input.Shape[1] != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], input.Shape[1])
	}

	output, err := tensor.MatMulAutograd(input, l.weight)
	if err != nil {
		return nil, err
	}
	output, err = tensor.AddAutograd(output, l.bias)
	if err != nil {
		return nil, fmt.Errorf("bias addition failed: %w", err)
	}
	return output, nil
}

// Parameters returns the weight followed by the bias
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.weight, l.bias}
}

// Stack is the runtime form of a StackSpec
type Stack struct {
	spec   *StackSpec
	layers []*Linear
}

// NewStack allocates and initializes every layer of a compiled spec
func NewStack(spec *StackSpec, device tensor.DeviceType, rng *rand.Rand) (*Stack, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("stack spec must be compiled")
	}
	stack := &Stack{spec: spec, layers: make([]*Linear, len(spec.Layers))}
	for i, ls := range spec.Layers {
		l, err := NewLinear(ls.InputSize, ls.OutputSize, device, rng)
		if err != nil {
			return nil, fmt.Errorf("stack %s layer %s: %w", spec.Name, ls.Name, err)
		}
		stack.layers[i] = l
	}
	return stack, nil
}

func (s *Stack) Spec() *StackSpec {
	return s.spec
}

// Forward runs every layer and its activation in order
func (s *Stack) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	x := input
	for i, l := range s.layers {
		out, err := l.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("stack %s layer %d: %w", s.spec.Name, i, err)
		}
		switch s.spec.Layers[i].Activation {
		case Tanh:
			out, err = tensor.TanhAutograd(out)
		case Sigmoid:
			out, err = tensor.SigmoidAutograd(out)
		}
		if err != nil {
			return nil, err
		}
		x = out
	}
	return x, nil
}

// Parameters returns every layer's parameters in layer order
func (s *Stack) Parameters() []*tensor.Tensor {
	params := make([]*tensor.Tensor, 0, 2*len(s.layers))
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// ParameterNames returns names parallel to Parameters, prefixed with prefix
func (s *Stack) ParameterNames(prefix string) []string {
	names := make([]string, 0, 2*len(s.layers))
	for _, ls := range s.spec.Layers {
		names = append(names, prefix+ls.Name+".weight", prefix+ls.Name+".bias")
	}
	return names
}
