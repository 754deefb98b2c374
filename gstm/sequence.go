package gstm

import (
	"fmt"

	"github.com/tsawler/go-gstm/tensor"
)

// Sequence is an ordered list of timesteps; each timestep holds one vector
// per channel: seq[t][channel][i]
type Sequence [][][]float64

// Len returns the number of timesteps
func (s Sequence) Len() int {
	return len(s)
}

// Validate checks that every timestep has channels vectors of width values
func (s Sequence) Validate(channels, width int) error {
	for t, step := range s {
		if len(step) != channels {
			return fmt.Errorf("timestep %d has %d channels, expected %d", t, len(step), channels)
		}
		for c, vec := range step {
			if len(vec) != width {
				return fmt.Errorf("timestep %d channel %d has width %d, expected %d", t, c, len(vec), width)
			}
		}
	}
	return nil
}

// Output is the result of a forward pass: one [1, vector_size] tensor per
// timestep and channel, still attached to the computation graph
type Output struct {
	Steps [][]*tensor.Tensor
}

// Len returns the number of generated timesteps
func (o *Output) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Steps)
}

// Values copies the output into a plain Sequence
func (o *Output) Values() Sequence {
	seq := make(Sequence, o.Len())
	for t, step := range o.Steps {
		seq[t] = make([][]float64, len(step))
		for c, y := range step {
			seq[t][c] = append([]float64(nil), y.Data...)
		}
	}
	return seq
}
