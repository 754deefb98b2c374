package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func checkSameShape(op string, t1, t2 *Tensor) error {
	if !shapesEqual(t1.Shape, t2.Shape) {
		return fmt.Errorf("%s: incompatible shapes %v and %v", op, t1.Shape, t2.Shape)
	}
	return nil
}

// isRowBroadcast reports whether b is a single row that can be added to
// every row of a
func isRowBroadcast(a, b *Tensor) bool {
	return len(a.Shape) == 2 && len(b.Shape) == 2 &&
		b.Shape[0] == 1 && a.Shape[0] > 1 && a.Shape[1] == b.Shape[1]
}

func newLike(t *Tensor) *Tensor {
	out, _ := NewTensor(t.Shape, t.Device, nil)
	return out
}

// Add returns t1 + t2. A [1, n] second operand is broadcast over the rows
// of a [m, n] first operand.
func Add(t1, t2 *Tensor) (*Tensor, error) {
	if isRowBroadcast(t1, t2) {
		result := t1.Clone()
		result.requiresGrad = false
		cols := t1.Shape[1]
		for r := 0; r < t1.Shape[0]; r++ {
			floats.Add(result.Data[r*cols:(r+1)*cols], t2.Data)
		}
		return result, nil
	}
	if err := checkSameShape("add", t1, t2); err != nil {
		return nil, err
	}
	result := newLike(t1)
	floats.AddTo(result.Data, t1.Data, t2.Data)
	return result, nil
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkSameShape("sub", t1, t2); err != nil {
		return nil, err
	}
	result := newLike(t1)
	floats.SubTo(result.Data, t1.Data, t2.Data)
	return result, nil
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkSameShape("mul", t1, t2); err != nil {
		return nil, err
	}
	result := newLike(t1)
	floats.MulTo(result.Data, t1.Data, t2.Data)
	return result, nil
}

func Div(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkSameShape("div", t1, t2); err != nil {
		return nil, err
	}
	result := newLike(t1)
	floats.DivTo(result.Data, t1.Data, t2.Data)
	return result, nil
}

// Scale returns c * t
func Scale(t *Tensor, c float64) *Tensor {
	result := newLike(t)
	floats.ScaleTo(result.Data, c, t.Data)
	return result
}

// MatMul multiplies a [m, k] matrix by a [k, n] matrix
func MatMul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("matmul: inner dimensions differ: %v x %v", a.Shape, b.Shape)
	}

	result, err := NewTensor([]int{a.Shape[0], b.Shape[1]}, a.Device, nil)
	if err != nil {
		return nil, err
	}
	dst := mat.NewDense(a.Shape[0], b.Shape[1], result.Data)
	dst.Mul(asDense(a), asDense(b))
	return result, nil
}

// asDense views a 2D tensor as a gonum matrix sharing the same storage
func asDense(t *Tensor) *mat.Dense {
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Data)
}

func Sigmoid(t *Tensor) *Tensor {
	result := newLike(t)
	for i, v := range t.Data {
		result.Data[i] = 1.0 / (1.0 + math.Exp(-v))
	}
	return result
}

func Tanh(t *Tensor) *Tensor {
	result := newLike(t)
	for i, v := range t.Data {
		result.Data[i] = math.Tanh(v)
	}
	return result
}

// Sum adds every element into a [1] tensor
func Sum(t *Tensor) *Tensor {
	return FromScalar(floats.Sum(t.Data), t.Device)
}

// Concat joins 2D tensors with the same number of rows along the columns
func Concat(parts ...*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat requires at least one tensor")
	}
	rows := -1
	cols := 0
	for i, p := range parts {
		if len(p.Shape) != 2 {
			return nil, fmt.Errorf("concat: tensor %d is not 2D (shape %v)", i, p.Shape)
		}
		if rows >= 0 && p.Shape[0] != rows {
			return nil, fmt.Errorf("concat: tensor %d has %d rows, expected %d", i, p.Shape[0], rows)
		}
		rows = p.Shape[0]
		cols += p.Shape[1]
	}

	result, err := NewTensor([]int{rows, cols}, parts[0].Device, nil)
	if err != nil {
		return nil, err
	}
	for r := 0; r < rows; r++ {
		offset := r * cols
		for _, p := range parts {
			w := p.Shape[1]
			copy(result.Data[offset:offset+w], p.Data[r*w:(r+1)*w])
			offset += w
		}
	}
	return result, nil
}
