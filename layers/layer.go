package layers

import (
	"fmt"
	"strings"
)

// Activation is the non-linearity applied after a dense layer
type Activation int

const (
	Identity Activation = iota
	Tanh
	Sigmoid
)

func (a Activation) String() string {
	switch a {
	case Identity:
		return "Identity"
	case Tanh:
		return "Tanh"
	case Sigmoid:
		return "Sigmoid"
	default:
		return "Unknown"
	}
}

// LayerSpec defines one dense layer of a stack
// This is pure configuration - no execution logic
type LayerSpec struct {
	Name       string     `json:"name"`
	InputSize  int        `json:"input_size"`
	OutputSize int        `json:"output_size"`
	Activation Activation `json:"activation"`

	// Parameter metadata (computed during compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// StackSpec is a compiled chain of dense layers
type StackSpec struct {
	Name            string      `json:"name"`
	Layers          []LayerSpec `json:"layers"`
	InputSize       int         `json:"input_size"`
	OutputSize      int         `json:"output_size"`
	TotalParameters int64       `json:"total_parameters"`
	Compiled        bool        `json:"compiled"`
}

// StackBuilder assembles a StackSpec layer by layer
type StackBuilder struct {
	name      string
	inputSize int
	layers    []LayerSpec
}

// NewStackBuilder starts a stack that consumes inputs of inputSize features
func NewStackBuilder(name string, inputSize int) *StackBuilder {
	return &StackBuilder{name: name, inputSize: inputSize}
}

// AddDense appends a dense layer; the input size is taken from the
// previous layer when the stack is compiled
func (sb *StackBuilder) AddDense(outputSize int, activation Activation) *StackBuilder {
	sb.layers = append(sb.layers, LayerSpec{
		Name:       fmt.Sprintf("fc%d", len(sb.layers)),
		OutputSize: outputSize,
		Activation: activation,
	})
	return sb
}

// Compile resolves layer input sizes and parameter shapes
func (sb *StackBuilder) Compile() (*StackSpec, error) {
	if sb.inputSize <= 0 {
		return nil, fmt.Errorf("stack %s: input size must be positive, got %d", sb.name, sb.inputSize)
	}
	if len(sb.layers) == 0 {
		return nil, fmt.Errorf("stack %s has no layers", sb.name)
	}

	spec := &StackSpec{
		Name:      sb.name,
		Layers:    make([]LayerSpec, len(sb.layers)),
		InputSize: sb.inputSize,
	}

	in := sb.inputSize
	for i, layer := range sb.layers {
		if layer.OutputSize <= 0 {
			return nil, fmt.Errorf("stack %s layer %d: output size must be positive, got %d", sb.name, i, layer.OutputSize)
		}
		layer.InputSize = in
		layer.ParameterShapes = [][]int{{in, layer.OutputSize}, {1, layer.OutputSize}}
		layer.ParameterCount = int64(in*layer.OutputSize + layer.OutputSize)
		spec.TotalParameters += layer.ParameterCount
		spec.Layers[i] = layer
		in = layer.OutputSize
	}
	spec.OutputSize = in
	spec.Compiled = true
	return spec, nil
}

// Summary renders the stack as a short table
func (ss *StackSpec) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stack %s (%d -> %d, %d parameters)\n", ss.Name, ss.InputSize, ss.OutputSize, ss.TotalParameters)
	for _, layer := range ss.Layers {
		fmt.Fprintf(&sb, "  %-5s %4d -> %-4d %-8s %d\n", layer.Name, layer.InputSize, layer.OutputSize, layer.Activation, layer.ParameterCount)
	}
	return sb.String()
}
