package tensor

import (
	"fmt"
	"strings"
)

func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of %d elements to shape %v", t.NumElems, newShape)
	}
	return NewTensor(newShape, t.Device, t.Data)
}

// Clone copies shape and data. The clone is a leaf: it has no creator and
// no gradient.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	return &Tensor{
		Shape:        append([]int(nil), t.Shape...),
		Strides:      append([]int(nil), t.Strides...),
		Device:       t.Device,
		Data:         data,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}
}

// Detach returns a view of the same data cut off from the graph
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		Shape:    t.Shape,
		Strides:  t.Strides,
		Device:   t.Device,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
}

// SetData overwrites the tensor's values in place
func (t *Tensor) SetData(data []float64) error {
	if len(data) != t.NumElems {
		return fmt.Errorf("data length %d does not match tensor size %d", len(data), t.NumElems)
	}
	copy(t.Data, data)
	return nil
}

// Item returns the value of a single element tensor
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item() requires a single element tensor, got %d elements", t.NumElems)
	}
	return t.Data[0], nil
}

func (t *Tensor) At(indices ...int) (float64, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of bounds for dimension %d of size %d", idx, i, t.Shape[i])
		}
		offset += idx * t.Strides[i]
	}
	return t.Data[offset], nil
}

func (t *Tensor) Numel() int {
	return t.NumElems
}

func (t *Tensor) Dim() int {
	return len(t.Shape)
}

// ToDevice places the tensor on a device. Computation always runs on host
// memory, so the move only retags the tensor and keeps its gradient state.
func (t *Tensor) ToDevice(device DeviceType) *Tensor {
	t.Device = device
	if t.grad != nil {
		t.grad.Device = device
	}
	return t
}

func (t *Tensor) PrintData(maxElements int) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range t.Data {
		if i >= maxElements {
			sb.WriteString(", ...")
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%.4f", v)
	}
	sb.WriteString("]")
	return sb.String()
}

// ZeroGrad clears the accumulated gradients of every tensor that has one
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad && t.grad != nil {
			for i := range t.grad.Data {
				t.grad.Data[i] = 0
			}
		}
	}
}
