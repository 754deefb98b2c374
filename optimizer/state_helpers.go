package optimizer

import (
	"fmt"

	"github.com/tsawler/go-gstm/tensor"
)

// buffers holds the per-parameter running state of an optimizer, one slot
// list per state type. Slots are allocated lazily on the first step that
// touches the parameter.
type buffers struct {
	params []*tensor.Tensor
	order  []string
	slots  map[string][][]float64
}

func newBuffers(params []*tensor.Tensor, stateTypes ...string) *buffers {
	b := &buffers{
		params: params,
		order:  stateTypes,
		slots:  make(map[string][][]float64, len(stateTypes)),
	}
	b.reset()
	return b
}

func (b *buffers) reset() {
	for _, st := range b.order {
		b.slots[st] = make([][]float64, len(b.params))
	}
}

// get returns the buffer or nil when it has not been allocated yet
func (b *buffers) get(stateType string, i int) []float64 {
	return b.slots[stateType][i]
}

// ensure returns the buffer, allocating zeros on first use
func (b *buffers) ensure(stateType string, i int) []float64 {
	buf := b.slots[stateType][i]
	if buf == nil {
		buf = make([]float64, b.params[i].NumElems)
		b.slots[stateType][i] = buf
	}
	return buf
}

func (b *buffers) snapshot() []Tensor {
	var out []Tensor
	for _, st := range b.order {
		for i, buf := range b.slots[st] {
			if buf == nil {
				continue
			}
			out = append(out, Tensor{
				Name:      fmt.Sprintf("%s_%d", st, i),
				Shape:     append([]int(nil), b.params[i].Shape...),
				Data:      append([]float64(nil), buf...),
				StateType: st,
			})
		}
	}
	return out
}

// restore replaces all buffers with the given state tensors. On error the
// current buffers are left as they were.
func (b *buffers) restore(data []Tensor) error {
	slots := make(map[string][][]float64, len(b.order))
	for _, st := range b.order {
		slots[st] = make([][]float64, len(b.params))
	}
	for _, t := range data {
		dst, ok := slots[t.StateType]
		if !ok {
			return fmt.Errorf("unknown state type %q in %s", t.StateType, t.Name)
		}
		idx := extractBufferIndex(t.Name)
		if idx < 0 || idx >= len(b.params) {
			return fmt.Errorf("state tensor %s does not name one of %d parameters", t.Name, len(b.params))
		}
		if len(t.Data) != b.params[idx].NumElems {
			return fmt.Errorf("data size mismatch for %s: expected %d elements, got %d",
				t.Name, b.params[idx].NumElems, len(t.Data))
		}
		dst[idx] = append([]float64(nil), t.Data...)
	}
	b.slots = slots
	return nil
}

// extractBufferIndex extracts the parameter index from state tensor names like "momentum_buffer_0", "exp_avg_sq_1"
func extractBufferIndex(name string) int {
	var idx int
	lastUnderscoreIdx := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			lastUnderscoreIdx = i
			break
		}
	}

	if lastUnderscoreIdx == -1 {
		return -1
	}

	if n, err := fmt.Sscanf(name[lastUnderscoreIdx+1:], "%d", &idx); n == 1 && err == nil {
		return idx
	}
	return -1
}

// validateStateType ensures the state belongs to this optimizer. Untagged
// states are accepted.
func validateStateType(kind Kind, state *State) error {
	if state == nil {
		return fmt.Errorf("nil optimizer state")
	}
	if state.Type != "" && state.Type != kind.String() {
		return fmt.Errorf("state type mismatch: expected %s, got %s", kind, state.Type)
	}
	return nil
}

// firstGroup returns the first parameter group or an empty one
func firstGroup(state *State) map[string]interface{} {
	if len(state.ParamGroups) == 0 {
		return map[string]interface{}{}
	}
	return state.ParamGroups[0]
}

// extractFloatParam safely extracts a float parameter from the state map
func extractFloatParam(params map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := params[key].(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	}
	return defaultValue
}

// extractBoolParam safely extracts a bool parameter from the state map
func extractBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := params[key].(bool); ok {
		return val
	}
	return defaultValue
}

// extractPairParam extracts a two element list such as Adam's betas
func extractPairParam(params map[string]interface{}, key string, d0, d1 float64) (float64, float64) {
	switch val := params[key].(type) {
	case []interface{}:
		if len(val) == 2 {
			a, okA := val[0].(float64)
			b, okB := val[1].(float64)
			if okA && okB {
				return a, b
			}
		}
	case []float64:
		if len(val) == 2 {
			return val[0], val[1]
		}
	}
	return d0, d1
}
