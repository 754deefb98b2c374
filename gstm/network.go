// Package gstm implements the gated-sequence network trained by the
// harness in package training.
//
// A network holds one independent cell per channel. A cell is made of the
// parallel modules of a blueprint; at every timestep each module reads the
// channel's input vector together with the channel's memory and produces a
// keep gate (intermediate state stage), a memory candidate (global state
// stage) and an output contribution (global output stage). Module results
// are averaged into the new memory and the timestep's output.
package gstm

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-gstm/blueprint"
	"github.com/tsawler/go-gstm/layers"
	"github.com/tsawler/go-gstm/tensor"
)

// defaultSeed seeds the weight initializer when the caller gives no source
const defaultSeed = 1

// Network is the assembled gated-sequence network
type Network struct {
	Blueprint  blueprint.Blueprint
	VectorSize int
	MemorySize int
	Channels   int

	cells  []*cell
	device tensor.DeviceType
}

type cell struct {
	modules []*module
}

type module struct {
	stages [blueprint.StagesPerModule]*layers.Stack
}

// stageActivation is the activation of a stage's last layer; hidden layers
// always use tanh
var stageActivation = [blueprint.StagesPerModule]layers.Activation{
	blueprint.IntermediateState: layers.Sigmoid,
	blueprint.GlobalState:       layers.Tanh,
	blueprint.GlobalOutput:      layers.Identity,
}

// CreateNetworks builds one cell per channel from a normalized blueprint.
// A nil rng uses a fixed seed so that assembly is reproducible.
func CreateNetworks(bp blueprint.Blueprint, vectorSize, memorySize, channels int, rng *rand.Rand) (*Network, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if err := bp.Validate(memorySize, vectorSize); err != nil {
		return nil, fmt.Errorf("invalid blueprint: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(defaultSeed))
	}

	net := &Network{
		Blueprint:  bp.Clone(),
		VectorSize: vectorSize,
		MemorySize: memorySize,
		Channels:   channels,
		cells:      make([]*cell, channels),
		device:     tensor.CPU,
	}

	inputSize := vectorSize + memorySize
	for c := range net.cells {
		cl := &cell{modules: make([]*module, len(bp))}
		for m, spec := range bp {
			mod := &module{}
			for s, stage := range spec {
				builder := layers.NewStackBuilder(stageName(c, m, s), inputSize)
				for i, width := range stage {
					act := layers.Tanh
					if i == len(stage)-1 {
						act = stageActivation[s]
					}
					builder.AddDense(width, act)
				}
				stackSpec, err := builder.Compile()
				if err != nil {
					return nil, err
				}
				stack, err := layers.NewStack(stackSpec, net.device, rng)
				if err != nil {
					return nil, err
				}
				mod.stages[s] = stack
			}
			cl.modules[m] = mod
		}
		net.cells[c] = cl
	}
	return net, nil
}

func stageName(c, m, s int) string {
	return fmt.Sprintf("ch%d.mod%d.%s", c, m, blueprint.StageName(s))
}

// GetParams returns the trainable tensors of the network and a parallel
// list of their names
func GetParams(net *Network) ([]*tensor.Tensor, []string) {
	var params []*tensor.Tensor
	var names []string
	for c, cl := range net.cells {
		for m, mod := range cl.modules {
			for s, stack := range mod.stages {
				params = append(params, stack.Parameters()...)
				names = append(names, stack.ParameterNames(stageName(c, m, s)+".")...)
			}
		}
	}
	return params, names
}

// Device returns where the network's parameters are placed
func (net *Network) Device() tensor.DeviceType {
	return net.device
}

// ToDevice places every parameter on device
func (net *Network) ToDevice(device tensor.DeviceType) {
	params, _ := GetParams(net)
	for _, p := range params {
		p.ToDevice(device)
	}
	net.device = device
}

// ParameterCount returns the number of scalar weights
func (net *Network) ParameterCount() int {
	params, _ := GetParams(net)
	total := 0
	for _, p := range params {
		total += p.NumElems
	}
	return total
}

// Propagate runs the network over seq. With genIterations <= 0 the number of
// steps is the input length; otherwise exactly genIterations steps are run
// and, once the input is exhausted, each channel is fed its own previous
// output.
func Propagate(net *Network, seq Sequence, genIterations int) (*Output, error) {
	if err := seq.Validate(net.Channels, net.VectorSize); err != nil {
		return nil, fmt.Errorf("invalid input sequence: %w", err)
	}
	steps := len(seq)
	if genIterations > 0 {
		steps = genIterations
	}

	out := &Output{Steps: make([][]*tensor.Tensor, steps)}
	for t := range out.Steps {
		out.Steps[t] = make([]*tensor.Tensor, net.Channels)
	}

	for c, cl := range net.cells {
		memory, err := tensor.Zeros([]int{1, net.MemorySize}, net.device)
		if err != nil {
			return nil, err
		}
		prev, err := tensor.Zeros([]int{1, net.VectorSize}, net.device)
		if err != nil {
			return nil, err
		}

		for t := 0; t < steps; t++ {
			x := prev
			if t < len(seq) {
				x, err = tensor.NewTensor([]int{1, net.VectorSize}, net.device, append([]float64(nil), seq[t][c]...))
				if err != nil {
					return nil, err
				}
			}

			y, next, err := cl.step(x, memory)
			if err != nil {
				return nil, fmt.Errorf("channel %d timestep %d: %w", c, t, err)
			}
			out.Steps[t][c] = y
			memory = next
			prev = y
		}
	}
	return out, nil
}

// step advances one cell by a single timestep and returns the output and
// the new memory
func (cl *cell) step(x, memory *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	z, err := tensor.ConcatAutograd(x, memory)
	if err != nil {
		return nil, nil, err
	}

	var memSum, outSum *tensor.Tensor
	for _, mod := range cl.modules {
		gate, err := mod.stages[blueprint.IntermediateState].Forward(z)
		if err != nil {
			return nil, nil, err
		}
		candidate, err := mod.stages[blueprint.GlobalState].Forward(z)
		if err != nil {
			return nil, nil, err
		}
		contribution, err := mod.stages[blueprint.GlobalOutput].Forward(z)
		if err != nil {
			return nil, nil, err
		}

		// gate*memory + (1-gate)*candidate
		kept, err := tensor.MulAutograd(gate, memory)
		if err != nil {
			return nil, nil, err
		}
		inv, err := tensor.OneMinusAutograd(gate)
		if err != nil {
			return nil, nil, err
		}
		fresh, err := tensor.MulAutograd(inv, candidate)
		if err != nil {
			return nil, nil, err
		}
		mem, err := tensor.AddAutograd(kept, fresh)
		if err != nil {
			return nil, nil, err
		}

		if memSum, err = addOrInit(memSum, mem); err != nil {
			return nil, nil, err
		}
		if outSum, err = addOrInit(outSum, contribution); err != nil {
			return nil, nil, err
		}
	}

	scale := 1.0 / float64(len(cl.modules))
	nextMemory, err := tensor.ScaleAutograd(memSum, scale)
	if err != nil {
		return nil, nil, err
	}
	pre, err := tensor.ScaleAutograd(outSum, scale)
	if err != nil {
		return nil, nil, err
	}
	y, err := tensor.SigmoidAutograd(pre)
	if err != nil {
		return nil, nil, err
	}
	return y, nextMemory, nil
}

func addOrInit(acc, t *tensor.Tensor) (*tensor.Tensor, error) {
	if acc == nil {
		return t, nil
	}
	return tensor.AddAutograd(acc, t)
}

// Loss is the mean squared error between the output and target over the
// timesteps both cover
func Loss(out *Output, target Sequence) (*tensor.Tensor, error) {
	steps := out.Len()
	if len(target) < steps {
		steps = len(target)
	}
	if steps == 0 {
		return nil, fmt.Errorf("loss needs at least one overlapping timestep (output %d, target %d)", out.Len(), len(target))
	}

	var total *tensor.Tensor
	count := 0
	for t := 0; t < steps; t++ {
		if len(target[t]) != len(out.Steps[t]) {
			return nil, fmt.Errorf("timestep %d: target has %d channels, output has %d", t, len(target[t]), len(out.Steps[t]))
		}
		for c, y := range out.Steps[t] {
			want, err := tensor.NewTensor(y.Shape, y.Device, append([]float64(nil), target[t][c]...))
			if err != nil {
				return nil, fmt.Errorf("timestep %d channel %d: %w", t, c, err)
			}
			diff, err := tensor.SubAutograd(y, want)
			if err != nil {
				return nil, err
			}
			sq, err := tensor.MulAutograd(diff, diff)
			if err != nil {
				return nil, err
			}
			s, err := tensor.SumAutograd(sq)
			if err != nil {
				return nil, err
			}
			if total, err = addOrInit(total, s); err != nil {
				return nil, err
			}
			count += y.NumElems
		}
	}
	return tensor.ScaleAutograd(total, 1.0/float64(count))
}
