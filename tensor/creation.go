package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor wraps data in a tensor of the given shape. The slice is used
// directly, not copied. A nil slice allocates zeros.
func NewTensor(shape []int, device DeviceType, data []float64) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if data == nil {
		data = make([]float64, numElems)
	}
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), numElems)
	}

	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Device:   device,
		Data:     data,
		NumElems: numElems,
	}, nil
}

func Zeros(shape []int, device DeviceType) (*Tensor, error) {
	return NewTensor(shape, device, nil)
}

func Ones(shape []int, device DeviceType) (*Tensor, error) {
	return Full(shape, 1, device)
}

func Full(shape []int, value float64, device DeviceType) (*Tensor, error) {
	t, err := Zeros(shape, device)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

// Uniform fills a tensor with values drawn from U(low, high)
func Uniform(shape []int, low, high float64, device DeviceType, rng *rand.Rand) (*Tensor, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	t, err := Zeros(shape, device)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = low + rng.Float64()*(high-low)
	}
	return t, nil
}

// FromScalar creates a single element tensor of shape [1]
func FromScalar(value float64, device DeviceType) *Tensor {
	t, _ := NewTensor([]int{1}, device, []float64{value})
	return t
}

// FromRows builds a [len(rows), width] matrix, copying the rows
func FromRows(rows [][]float64, device DeviceType) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows given")
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return NewTensor([]int{len(rows), width}, device, data)
}
