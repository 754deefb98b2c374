package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func record(result *Tensor, op Operation, inputs ...*Tensor) *Tensor {
	for _, in := range inputs {
		if in.requiresGrad {
			result.requiresGrad = true
			result.creator = op
			break
		}
	}
	return result
}

// AddOp implements the Operation interface for tensor addition
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

func (op *AddOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("AddOp requires exactly 2 inputs, got %d", len(inputs))
	}
	op.inputs = inputs
	result, err := Add(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(result, op, inputs...), nil
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := gradOut.Clone()
	if !isRowBroadcast(a, b) {
		return []*Tensor{gradA, gradOut.Clone()}
	}

	// the broadcast row receives the sum over all rows
	gradB := newLike(b)
	cols := b.Shape[1]
	for r := 0; r < a.Shape[0]; r++ {
		floats.Add(gradB.Data, gradOut.Data[r*cols:(r+1)*cols])
	}
	return []*Tensor{gradA, gradB}
}

// SubOp implements the Operation interface for tensor subtraction
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

func (op *SubOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("SubOp requires exactly 2 inputs, got %d", len(inputs))
	}
	op.inputs = inputs
	result, err := Sub(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(result, op, inputs...), nil
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{gradOut.Clone(), Scale(gradOut, -1)}
}

// MulOp implements the Operation interface for element-wise multiplication
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

func (op *MulOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("MulOp requires exactly 2 inputs, got %d", len(inputs))
	}
	op.inputs = inputs
	result, err := Mul(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(result, op, inputs...), nil
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	// ∂(a * b)/∂a = b, ∂(a * b)/∂b = a
	gradA := newLike(gradOut)
	floats.MulTo(gradA.Data, gradOut.Data, op.inputs[1].Data)
	gradB := newLike(gradOut)
	floats.MulTo(gradB.Data, gradOut.Data, op.inputs[0].Data)
	return []*Tensor{gradA, gradB}
}

// ScaleOp multiplies by a constant
type ScaleOp struct {
	inputs []*Tensor
	factor float64
}

func (op *ScaleOp) Inputs() []*Tensor { return op.inputs }

func (op *ScaleOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("ScaleOp requires exactly 1 input, got %d", len(inputs))
	}
	op.inputs = inputs
	return record(Scale(inputs[0], op.factor), op, inputs...), nil
}

func (op *ScaleOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{Scale(gradOut, op.factor)}
}

// OneMinusOp computes 1 - x
type OneMinusOp struct {
	inputs []*Tensor
}

func (op *OneMinusOp) Inputs() []*Tensor { return op.inputs }

func (op *OneMinusOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("OneMinusOp requires exactly 1 input, got %d", len(inputs))
	}
	op.inputs = inputs
	result := Scale(inputs[0], -1)
	floats.AddConst(1, result.Data)
	return record(result, op, inputs...), nil
}

func (op *OneMinusOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{Scale(gradOut, -1)}
}

// MatMulOp implements the Operation interface for matrix multiplication
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Inputs() []*Tensor { return op.inputs }

func (op *MatMulOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("MatMulOp requires exactly 2 inputs, got %d", len(inputs))
	}
	op.inputs = inputs
	result, err := MatMul(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(result, op, inputs...), nil
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	g := asDense(gradOut)

	// ∂L/∂A = G · Bᵀ, ∂L/∂B = Aᵀ · G
	gradA := newLike(a)
	mat.NewDense(a.Shape[0], a.Shape[1], gradA.Data).Mul(g, asDense(b).T())
	gradB := newLike(b)
	mat.NewDense(b.Shape[0], b.Shape[1], gradB.Data).Mul(asDense(a).T(), g)
	return []*Tensor{gradA, gradB}
}

// SigmoidOp implements the Operation interface for Sigmoid activation
type SigmoidOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *SigmoidOp) Inputs() []*Tensor { return op.inputs }

func (op *SigmoidOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("SigmoidOp requires exactly 1 input, got %d", len(inputs))
	}
	op.inputs = inputs
	op.output = Sigmoid(inputs[0])
	return record(op.output, op, inputs...), nil
}

func (op *SigmoidOp) Backward(gradOut *Tensor) []*Tensor {
	// ∂σ(x)/∂x = σ(x) * (1 - σ(x))
	grad := newLike(gradOut)
	for i, y := range op.output.Data {
		grad.Data[i] = gradOut.Data[i] * y * (1 - y)
	}
	return []*Tensor{grad}
}

// TanhOp implements the Operation interface for Tanh activation
type TanhOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *TanhOp) Inputs() []*Tensor { return op.inputs }

func (op *TanhOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("TanhOp requires exactly 1 input, got %d", len(inputs))
	}
	op.inputs = inputs
	op.output = Tanh(inputs[0])
	return record(op.output, op, inputs...), nil
}

func (op *TanhOp) Backward(gradOut *Tensor) []*Tensor {
	// ∂tanh(x)/∂x = 1 - tanh(x)²
	grad := newLike(gradOut)
	for i, y := range op.output.Data {
		grad.Data[i] = gradOut.Data[i] * (1 - y*y)
	}
	return []*Tensor{grad}
}

// SumOp reduces a tensor to a single element
type SumOp struct {
	inputs []*Tensor
}

func (op *SumOp) Inputs() []*Tensor { return op.inputs }

func (op *SumOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("SumOp requires exactly 1 input, got %d", len(inputs))
	}
	op.inputs = inputs
	return record(Sum(inputs[0]), op, inputs...), nil
}

func (op *SumOp) Backward(gradOut *Tensor) []*Tensor {
	grad := newLike(op.inputs[0])
	for i := range grad.Data {
		grad.Data[i] = gradOut.Data[0]
	}
	return []*Tensor{grad}
}

// ConcatOp joins 2D tensors along the columns
type ConcatOp struct {
	inputs []*Tensor
}

func (op *ConcatOp) Inputs() []*Tensor { return op.inputs }

func (op *ConcatOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.inputs = inputs
	result, err := Concat(inputs...)
	if err != nil {
		return nil, err
	}
	return record(result, op, inputs...), nil
}

func (op *ConcatOp) Backward(gradOut *Tensor) []*Tensor {
	grads := make([]*Tensor, len(op.inputs))
	rows, cols := gradOut.Shape[0], gradOut.Shape[1]
	offset := 0
	for i, in := range op.inputs {
		w := in.Shape[1]
		g := newLike(in)
		for r := 0; r < rows; r++ {
			copy(g.Data[r*w:(r+1)*w], gradOut.Data[r*cols+offset:r*cols+offset+w])
		}
		grads[i] = g
		offset += w
	}
	return grads
}

// High-level autograd functions that create and execute operations

// AddAutograd performs addition with automatic differentiation
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	return (&AddOp{}).Forward(a, b)
}

// SubAutograd performs subtraction with automatic differentiation
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	return (&SubOp{}).Forward(a, b)
}

// MulAutograd performs element-wise multiplication with automatic differentiation
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	return (&MulOp{}).Forward(a, b)
}

// ScaleAutograd multiplies by a constant with automatic differentiation
func ScaleAutograd(a *Tensor, factor float64) (*Tensor, error) {
	return (&ScaleOp{factor: factor}).Forward(a)
}

// OneMinusAutograd computes 1 - a with automatic differentiation
func OneMinusAutograd(a *Tensor) (*Tensor, error) {
	return (&OneMinusOp{}).Forward(a)
}

// MatMulAutograd performs matrix multiplication with automatic differentiation
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	return (&MatMulOp{}).Forward(a, b)
}

// SigmoidAutograd performs Sigmoid activation with automatic differentiation
func SigmoidAutograd(a *Tensor) (*Tensor, error) {
	return (&SigmoidOp{}).Forward(a)
}

// TanhAutograd performs Tanh activation with automatic differentiation
func TanhAutograd(a *Tensor) (*Tensor, error) {
	return (&TanhOp{}).Forward(a)
}

// SumAutograd sums all elements with automatic differentiation
func SumAutograd(a *Tensor) (*Tensor, error) {
	return (&SumOp{}).Forward(a)
}

// ConcatAutograd joins tensors along the columns with automatic differentiation
func ConcatAutograd(parts ...*Tensor) (*Tensor, error) {
	return (&ConcatOp{}).Forward(parts...)
}

// Backward runs reverse-mode differentiation from a single element tensor.
// Gradients of leaf tensors that require them are added to whatever the
// leaves already hold; call ZeroGrad to start over.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a single element tensor, got shape %v", t.Shape)
	}
	seed, err := Ones(t.Shape, t.Device)
	if err != nil {
		return err
	}
	return t.BackwardWithGrad(seed)
}

// BackwardWithGrad runs reverse-mode differentiation seeded with grad
func (t *Tensor) BackwardWithGrad(grad *Tensor) error {
	if !t.requiresGrad {
		return fmt.Errorf("tensor does not require grad")
	}
	if !shapesEqual(grad.Shape, t.Shape) {
		return fmt.Errorf("seed gradient shape %v does not match tensor shape %v", grad.Shape, t.Shape)
	}

	order := topologicalOrder(t)
	grads := map[*Tensor]*Tensor{t: grad.Clone()}

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g := grads[node]
		if g == nil {
			continue
		}
		delete(grads, node)

		if node.creator == nil {
			accumulate(node, g)
			continue
		}

		inputGrads := node.creator.Backward(g)
		for j, in := range node.creator.Inputs() {
			if !in.requiresGrad || inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[in]; ok {
				floats.Add(existing.Data, inputGrads[j].Data)
			} else {
				grads[in] = inputGrads[j]
			}
		}
	}
	return nil
}

func accumulate(leaf *Tensor, g *Tensor) {
	if leaf.grad == nil {
		leaf.grad = g.Clone()
		leaf.grad.requiresGrad = false
		return
	}
	floats.Add(leaf.grad.Data, g.Data)
}

// topologicalOrder lists the graph reachable from root so that every node
// appears after all of its inputs
func topologicalOrder(root *Tensor) []*Tensor {
	var order []*Tensor
	visited := make(map[*Tensor]bool)

	type frame struct {
		node *Tensor
		next int
	}
	stack := []frame{{node: root}}
	visited[root] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		var inputs []*Tensor
		if top.node.creator != nil {
			inputs = top.node.creator.Inputs()
		}
		if top.next < len(inputs) {
			in := inputs[top.next]
			top.next++
			if !visited[in] && in.requiresGrad {
				visited[in] = true
				stack = append(stack, frame{node: in})
			}
			continue
		}
		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}
	return order
}
