package optimizer

import (
	"testing"

	"github.com/tsawler/go-gstm/tensor"
)

// TestDefaultRMSPropConfig tests the default RMSProp configuration
func TestDefaultRMSPropConfig(t *testing.T) {
	config := DefaultRMSPropConfig()

	if config.Alpha != 0.99 {
		t.Errorf("Expected Alpha 0.99, got %f", config.Alpha)
	}
	if config.Epsilon != 1e-8 {
		t.Errorf("Expected Epsilon 1e-8, got %e", config.Epsilon)
	}
	if config.Momentum != 0 || config.Centered {
		t.Errorf("Expected no momentum and uncentered, got %+v", config)
	}
}

func TestRMSPropFirstStep(t *testing.T) {
	p := newParam(t, []float64{1, 2}, []float64{0.5, -1})
	cfg := DefaultRMSPropConfig()
	rms, err := NewRMSProp([]*tensor.Tensor{p}, cfg)
	if err != nil {
		t.Fatal(err)
	}

	// square_avg = 0.01 g^2, so the step is lr * g / (0.1|g|)
	if err := rms.Step(); err != nil {
		t.Fatal(err)
	}
	assertClose(t, p.Data, []float64{0.9, 2.1}, 1e-6)
}

func TestRMSPropVariants(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*RMSPropConfig)
		wantTypes []string
	}{
		{"plain", func(c *RMSPropConfig) {}, []string{stateSquareAvg}},
		{"momentum", func(c *RMSPropConfig) { c.Momentum = 0.9 }, []string{stateSquareAvg, stateMomentum}},
		{"centered", func(c *RMSPropConfig) { c.Centered = true }, []string{stateSquareAvg, stateGradAvg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParam(t, []float64{1, 2}, []float64{0.5, -1})
			cfg := DefaultRMSPropConfig()
			tt.modify(&cfg)
			rms, err := NewRMSProp([]*tensor.Tensor{p}, cfg)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 2; i++ {
				if err := rms.Step(); err != nil {
					t.Fatal(err)
				}
			}
			state, _ := rms.GetState()
			if len(state.StateData) != len(tt.wantTypes) {
				t.Fatalf("Expected %d state tensors, got %d", len(tt.wantTypes), len(state.StateData))
			}
			for i, st := range state.StateData {
				if st.StateType != tt.wantTypes[i] {
					t.Errorf("state %d: got %s, want %s", i, st.StateType, tt.wantTypes[i])
				}
			}
			if p.Data[0] >= 1 || p.Data[1] <= 2 {
				t.Errorf("parameters did not move against the gradient: %v", p.Data)
			}
		})
	}
}
