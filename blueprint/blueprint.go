// Package blueprint describes and normalizes the topology of a gated-sequence
// network.
//
// A Blueprint is a list of parallel modules. Every module has three stages,
// in this order: intermediate state, global state and global output. A stage
// is the list of layer widths of a small dense stack; its last width is the
// stage's output size. Normalization forces the output of stage i to the
// i-th target size (memory, memory, vector) so that the modules can be
// combined by the network.
package blueprint

import (
	"fmt"
	"strconv"
	"strings"
)

// Stage positions inside a module
const (
	IntermediateState = iota
	GlobalState
	GlobalOutput

	StagesPerModule = 3
)

// DefaultModules is the number of modules in the default blueprint
const DefaultModules = 2

// Stage is an ordered list of layer widths. The canonical form is the pair
// (input size, output size); normalization may append a trailing width.
type Stage []int

// Module is the ordered list of stages of one parallel module
type Module []Stage

// Blueprint is the full topology description passed to network assembly
type Blueprint []Module

// StageName returns a human readable name for a stage position
func StageName(i int) string {
	switch i {
	case IntermediateState:
		return "intermediate"
	case GlobalState:
		return "state"
	case GlobalOutput:
		return "output"
	default:
		return fmt.Sprintf("stage%d", i)
	}
}

// Targets returns the forced output size of each stage position
func Targets(memorySize, vectorSize int) [StagesPerModule]int {
	return [StagesPerModule]int{memorySize, memorySize, vectorSize}
}

// Default builds the structural default: two identical modules whose stages
// squeeze the input to three fifths of the target width before projecting
// to the target
func Default(memorySize, vectorSize int) Blueprint {
	bp := make(Blueprint, DefaultModules)
	for i := range bp {
		bp[i] = Module{
			Stage{memorySize * 3 / 5, memorySize},
			Stage{memorySize * 3 / 5, memorySize},
			Stage{vectorSize * 3 / 5, vectorSize},
		}
	}
	return bp
}

// Normalize resolves a caller supplied blueprint against the target sizes.
//
// A nil blueprint yields Default. A non-nil empty one is returned empty so
// that Validate rejects it. Otherwise every present stage is
// paired positionally with its target; a stage that is empty or whose last
// width differs from the target gets the target appended, and a matching
// stage is copied unchanged. Modules with fewer than three stages are only
// normalized for the stages they have, and stages past the third are dropped.
// The input is never modified.
func Normalize(custom Blueprint, memorySize, vectorSize int) Blueprint {
	if custom == nil {
		return Default(memorySize, vectorSize)
	}

	targets := Targets(memorySize, vectorSize)
	out := make(Blueprint, len(custom))
	for m, module := range custom {
		n := len(module)
		if n > StagesPerModule {
			n = StagesPerModule
		}
		resolved := make(Module, n)
		for i := 0; i < n; i++ {
			stage := module[i]
			target := targets[i]
			widths := make(Stage, len(stage), len(stage)+1)
			copy(widths, stage)
			if len(stage) == 0 || stage[len(stage)-1] != target {
				widths = append(widths, target)
			}
			resolved[i] = widths
		}
		out[m] = resolved
	}
	return out
}

// Output returns the stage's output size, or 0 for an empty stage
func (s Stage) Output() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// Clone returns a deep copy of the blueprint
func (bp Blueprint) Clone() Blueprint {
	if bp == nil {
		return nil
	}
	out := make(Blueprint, len(bp))
	for m, module := range bp {
		out[m] = make(Module, len(module))
		for i, stage := range module {
			out[m][i] = append(Stage(nil), stage...)
		}
	}
	return out
}

// Validate checks that a normalized blueprint can be assembled into a
// network: every module needs all three stages, every width must be
// positive and every stage must end on its target size
func (bp Blueprint) Validate(memorySize, vectorSize int) error {
	if memorySize <= 0 || vectorSize <= 0 {
		return fmt.Errorf("memory size and vector size must be positive, got %d and %d", memorySize, vectorSize)
	}
	if len(bp) == 0 {
		return fmt.Errorf("blueprint has no modules")
	}

	targets := Targets(memorySize, vectorSize)
	for m, module := range bp {
		if len(module) != StagesPerModule {
			return fmt.Errorf("module %d has %d stages, expected %d", m, len(module), StagesPerModule)
		}
		for i, stage := range module {
			if len(stage) == 0 {
				return fmt.Errorf("module %d %s stage is empty", m, StageName(i))
			}
			for j, w := range stage {
				if w <= 0 {
					return fmt.Errorf("module %d %s stage: width %d at position %d must be positive", m, StageName(i), w, j)
				}
			}
			if stage.Output() != targets[i] {
				return fmt.Errorf("module %d %s stage ends with %d, expected %d", m, StageName(i), stage.Output(), targets[i])
			}
		}
	}
	return nil
}

// String renders the blueprint compactly, one bracketed group per module,
// e.g. "[(6,10) (6,10) (3,5)] [(6,10) (6,10) (3,5)]"
func (bp Blueprint) String() string {
	var sb strings.Builder
	for m, module := range bp {
		if m > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("[")
		for i, stage := range module {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString("(")
			for j, w := range stage {
				if j > 0 {
					sb.WriteString(",")
				}
				fmt.Fprintf(&sb, "%d", w)
			}
			sb.WriteString(")")
		}
		sb.WriteString("]")
	}
	return sb.String()
}

// Parse reads the form produced by String. Whitespace is ignored and an
// empty stage is written "()". An empty string yields a nil blueprint,
// which Normalize replaces with the default.
func Parse(s string) (Blueprint, error) {
	s = strings.Join(strings.Fields(s), "")
	var (
		bp     Blueprint
		module Module
		stage  Stage
		inMod  bool
		inStg  bool
		num    strings.Builder
	)
	flush := func() error {
		if num.Len() == 0 {
			return nil
		}
		w, err := strconv.Atoi(num.String())
		if err != nil {
			return fmt.Errorf("invalid width %q: %w", num.String(), err)
		}
		num.Reset()
		stage = append(stage, w)
		return nil
	}

	for i, r := range s {
		switch {
		case r == '[' && !inMod:
			inMod, module = true, Module{}
		case r == ']' && inMod && !inStg:
			inMod = false
			bp = append(bp, module)
		case r == '(' && inMod && !inStg:
			inStg, stage = true, Stage{}
		case r == ')' && inStg:
			if err := flush(); err != nil {
				return nil, err
			}
			inStg = false
			module = append(module, stage)
		case r == ',' && inStg:
			if num.Len() == 0 {
				return nil, fmt.Errorf("missing width at offset %d", i)
			}
			if err := flush(); err != nil {
				return nil, err
			}
		case (r >= '0' && r <= '9' || r == '-') && inStg:
			num.WriteRune(r)
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", r, i)
		}
	}
	if inMod || inStg {
		return nil, fmt.Errorf("unterminated blueprint %q", s)
	}
	return bp, nil
}
