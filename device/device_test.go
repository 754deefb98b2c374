package device

import (
	"strings"
	"testing"

	"github.com/tsawler/go-gstm/tensor"
)

func TestDetectIsStable(t *testing.T) {
	first := Detect()
	second := Detect()
	if first.Type != second.Type || first.Name != second.Name {
		t.Errorf("Detect changed between calls: %v vs %v", first, second)
	}
	if Default().Type != first.Type {
		t.Errorf("Default differs from Detect")
	}
}

func TestCPUDevice(t *testing.T) {
	d := CPU()
	if d.Type != tensor.CPU || d.IsAccelerator() {
		t.Errorf("Expected CPU device, got %v", d)
	}
	if d.Cores < 1 {
		t.Errorf("Expected at least one core, got %d", d.Cores)
	}
	if !strings.HasPrefix(d.String(), "CPU") {
		t.Errorf("Unexpected description %q", d.String())
	}
}

func TestAcceleratorDevice(t *testing.T) {
	d := Accelerator(1, "test-gpu")
	if !d.IsAccelerator() {
		t.Fatal("Expected accelerator")
	}
	if d.String() != "GPU:1 (test-gpu)" {
		t.Errorf("Unexpected description %q", d.String())
	}
}
