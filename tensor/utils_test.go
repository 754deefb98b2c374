package tensor

import (
	"reflect"
	"strings"
	"testing"
)

func TestReshape(t *testing.T) {
	original, _ := NewTensor([]int{2, 3}, CPU, []float64{1, 2, 3, 4, 5, 6})

	reshaped, err := original.Reshape([]int{3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !reflect.DeepEqual(reshaped.Strides, []int{2, 1}) {
		t.Errorf("expected strides [2 1], got %v", reshaped.Strides)
	}
	if v, _ := reshaped.At(2, 1); v != 6 {
		t.Errorf("expected 6 at (2, 1), got %v", v)
	}

	if _, err := original.Reshape([]int{4, 2}); err == nil {
		t.Error("expected error for an element count mismatch")
	}
}

func TestCloneAndDetach(t *testing.T) {
	original, _ := NewTensor([]int{2}, CPU, []float64{1, 2})
	original.SetRequiresGrad(true)
	if err := original.SetGrad(FromScalar(0, CPU)); err == nil {
		t.Error("expected error for a gradient of the wrong shape")
	}

	clone := original.Clone()
	clone.Data[0] = 10
	if original.Data[0] != 1 {
		t.Error("clone shares data with the original")
	}
	if !clone.RequiresGrad() || clone.Grad() != nil || !clone.IsLeaf() {
		t.Error("expected the clone to be a leaf that requires grad")
	}

	detached := original.Detach()
	detached.Data[1] = 20
	if original.Data[1] != 20 {
		t.Error("detach must share data")
	}
	if detached.RequiresGrad() {
		t.Error("detached tensor must not require grad")
	}
}

func TestAccessors(t *testing.T) {
	tensor, _ := NewTensor([]int{2, 2}, CPU, []float64{1, 2, 3, 4})

	if tensor.Numel() != 4 || tensor.Dim() != 2 {
		t.Errorf("expected 4 elements in 2 dimensions, got %d and %d", tensor.Numel(), tensor.Dim())
	}
	if v, err := tensor.At(1, 0); err != nil || v != 3 {
		t.Errorf("expected 3 at (1, 0), got %v (%v)", v, err)
	}
	for _, idx := range [][]int{{2, 0}, {0}, {0, -1}} {
		if _, err := tensor.At(idx...); err == nil {
			t.Errorf("expected error for indices %v", idx)
		}
	}
	if _, err := tensor.Item(); err == nil {
		t.Error("expected error calling Item on a multi-element tensor")
	}

	if err := tensor.SetData([]float64{5, 6, 7, 8}); err != nil || tensor.Data[3] != 8 {
		t.Errorf("SetData failed: %v", err)
	}
	if err := tensor.SetData([]float64{1}); err == nil {
		t.Error("expected error for a short SetData")
	}

	printed := tensor.PrintData(2)
	if !strings.HasPrefix(printed, "[5.0000, 6.0000") || !strings.HasSuffix(printed, "...]") {
		t.Errorf("unexpected PrintData output %q", printed)
	}
}

func TestZeroGrad(t *testing.T) {
	a, _ := NewTensor([]int{2}, CPU, []float64{1, 2})
	a.SetRequiresGrad(true)
	grad, _ := NewTensor([]int{2}, CPU, []float64{3, 4})
	if err := a.SetGrad(grad); err != nil {
		t.Fatal(err)
	}
	b, _ := NewTensor([]int{1}, CPU, nil)

	ZeroGrad([]*Tensor{a, b})
	if a.Grad() == nil {
		t.Fatal("ZeroGrad must keep the gradient tensor")
	}
	if a.Grad().Data[0] != 0 || a.Grad().Data[1] != 0 {
		t.Errorf("expected zeroed gradient, got %v", a.Grad().Data)
	}
}
