package tensor

import (
	"math"
	"testing"
)

func TestElementwiseOperations(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, CPU, []float64{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, CPU, []float64{2, 2, 2, 2})

	tests := []struct {
		name     string
		op       func(x, y *Tensor) (*Tensor, error)
		expected []float64
	}{
		{"Add", Add, []float64{3, 4, 5, 6}},
		{"Sub", Sub, []float64{-1, 0, 1, 2}},
		{"Mul", Mul, []float64{2, 4, 6, 8}},
		{"Div", Div, []float64{0.5, 1, 1.5, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.op(a, b)
			if err != nil {
				t.Fatalf("%s failed: %v", tt.name, err)
			}
			for i, want := range tt.expected {
				if result.Data[i] != want {
					t.Errorf("element %d: expected %v, got %v", i, want, result.Data[i])
				}
			}

			wrong, _ := NewTensor([]int{4}, CPU, nil)
			if _, err := tt.op(a, wrong); err == nil {
				t.Errorf("%s: expected error for mismatched shapes", tt.name)
			}
		})
	}
}

func TestAddRowBroadcast(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, CPU, []float64{1, 2, 3, 4, 5, 6})
	row, _ := NewTensor([]int{1, 3}, CPU, []float64{10, 20, 30})

	result, err := Add(a, row)
	if err != nil {
		t.Fatal(err)
	}
	expected := []float64{11, 22, 33, 14, 25, 36}
	for i, want := range expected {
		if result.Data[i] != want {
			t.Fatalf("expected %v, got %v", expected, result.Data)
		}
	}
	if a.Data[0] != 1 {
		t.Error("Add modified its input")
	}
}

func TestUnaryOperations(t *testing.T) {
	x, _ := NewTensor([]int{3}, CPU, []float64{-1, 0, 2})

	if got := Scale(x, 3).Data; got[0] != -3 || got[2] != 6 {
		t.Errorf("Scale: unexpected %v", got)
	}

	sig := Sigmoid(x)
	if sig.Data[1] != 0.5 || math.Abs(sig.Data[2]-1/(1+math.Exp(-2))) > 1e-15 {
		t.Errorf("Sigmoid: unexpected %v", sig.Data)
	}

	th := Tanh(x)
	if th.Data[1] != 0 || math.Abs(th.Data[0]-math.Tanh(-1)) > 1e-15 {
		t.Errorf("Tanh: unexpected %v", th.Data)
	}

	if s, _ := Sum(x).Item(); s != 1 {
		t.Errorf("Sum: expected 1, got %v", s)
	}
}
