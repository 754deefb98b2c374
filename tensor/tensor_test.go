package tensor

import (
	"math/rand"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("valid shape", func(t *testing.T) {
		tensor, err := NewTensor([]int{2, 3}, CPU, nil)
		if err != nil {
			t.Fatalf("Failed to create tensor: %v", err)
		}
		if tensor.NumElems != 6 {
			t.Errorf("Expected 6 elements, got %d", tensor.NumElems)
		}
		if tensor.Strides[0] != 3 || tensor.Strides[1] != 1 {
			t.Errorf("Unexpected strides %v", tensor.Strides)
		}
	})

	t.Run("invalid shape", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 0}, CPU, nil); err == nil {
			t.Error("Expected error for zero dimension")
		}
	})

	t.Run("data length mismatch", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 2}, CPU, []float64{1, 2, 3}); err == nil {
			t.Error("Expected error for mismatched data length")
		}
	})
}

func TestMatMul(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, CPU, []float64{1, 2, 3, 4, 5, 6})
	b, _ := NewTensor([]int{3, 2}, CPU, []float64{7, 8, 9, 10, 11, 12})

	c, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	want := []float64{58, 64, 139, 154}
	for i, v := range want {
		if c.Data[i] != v {
			t.Errorf("c[%d]: expected %v, got %v", i, v, c.Data[i])
		}
	}

	if _, err := MatMul(a, a); err == nil {
		t.Error("Expected error for mismatched inner dimensions")
	}
}

func TestConcat(t *testing.T) {
	a, _ := NewTensor([]int{2, 1}, CPU, []float64{1, 2})
	b, _ := NewTensor([]int{2, 2}, CPU, []float64{3, 4, 5, 6})

	c, err := Concat(a, b)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	want := []float64{1, 3, 4, 2, 5, 6}
	for i, v := range want {
		if c.Data[i] != v {
			t.Errorf("c[%d]: expected %v, got %v", i, v, c.Data[i])
		}
	}

	d, _ := NewTensor([]int{3, 1}, CPU, nil)
	if _, err := Concat(a, d); err == nil {
		t.Error("Expected error for mismatched rows")
	}
}

func TestCloneAndSetData(t *testing.T) {
	a, _ := NewTensor([]int{3}, CPU, []float64{1, 2, 3})
	clone := a.Clone()
	clone.Data[0] = 100
	if a.Data[0] != 1 {
		t.Error("Clone shares data with original")
	}

	if err := a.SetData([]float64{4, 5, 6}); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if v, _ := a.At(2); v != 6 {
		t.Errorf("Expected 6, got %v", v)
	}
	if err := a.SetData([]float64{1}); err == nil {
		t.Error("Expected error for wrong data length")
	}
}

func TestUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	u, err := Uniform([]int{100}, 0, 1, CPU, rng)
	if err != nil {
		t.Fatalf("Uniform failed: %v", err)
	}
	for i, v := range u.Data {
		if v < 0 || v >= 1 {
			t.Errorf("value %d out of range: %v", i, v)
		}
	}
	if _, err := Uniform([]int{1}, 0, 1, CPU, nil); err == nil {
		t.Error("Expected error for nil random source")
	}
}

func TestToDevice(t *testing.T) {
	a, _ := Ones([]int{2}, CPU)
	a.ToDevice(GPU)
	if a.Device != GPU {
		t.Errorf("Expected GPU, got %s", a.Device)
	}
	if a.Device.String() != "GPU" || CPU.String() != "CPU" {
		t.Error("Unexpected device names")
	}
}
