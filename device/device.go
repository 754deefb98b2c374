// Package device selects the compute device a model is placed on.
//
// Selection happens once per process through Detect; the result is a plain
// value that callers pass to model assembly and session loading, so tests
// can substitute their own.
package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/cpuid/v2"

	"github.com/tsawler/go-gstm/tensor"
)

// Device describes where model parameters live
type Device struct {
	Type  tensor.DeviceType
	Name  string
	Index int

	// Host CPU description, filled for every device since the host always
	// drives computation
	Cores    int
	Features []string
}

// CPU returns a host device described by cpuid
func CPU() Device {
	return Device{
		Type:     tensor.CPU,
		Name:     hostName(),
		Cores:    hostCores(),
		Features: hostFeatures(),
	}
}

// Accelerator returns a GPU device with the given ordinal and name
func Accelerator(index int, name string) Device {
	d := CPU()
	d.Type = tensor.GPU
	d.Index = index
	d.Name = name
	return d
}

var (
	detectOnce sync.Once
	detected   Device
)

// Detect probes for an accelerator and falls back to the host CPU. The probe
// runs only on the first call; later calls return the same value.
func Detect() Device {
	detectOnce.Do(func() {
		if index, name, ok := probeAccelerator(); ok {
			detected = Accelerator(index, name)
			return
		}
		detected = CPU()
	})
	return detected
}

// Default is the device used when a caller does not choose one
func Default() Device {
	return Detect()
}

// IsAccelerator reports whether the device is a GPU
func (d Device) IsAccelerator() bool {
	return d.Type == tensor.GPU
}

func (d Device) String() string {
	if d.IsAccelerator() {
		return fmt.Sprintf("%s:%d (%s)", d.Type, d.Index, d.Name)
	}
	if len(d.Features) == 0 {
		return fmt.Sprintf("%s (%s, %d cores)", d.Type, d.Name, d.Cores)
	}
	return fmt.Sprintf("%s (%s, %d cores, %s)", d.Type, d.Name, d.Cores, strings.Join(d.Features, ","))
}

func hostName() string {
	if cpuid.CPU.BrandName != "" {
		return cpuid.CPU.BrandName
	}
	return "unknown cpu"
}

func hostCores() int {
	if cpuid.CPU.LogicalCores > 0 {
		return cpuid.CPU.LogicalCores
	}
	return 1
}

// hostFeatures lists the SIMD extensions relevant to dense float64 math
func hostFeatures() []string {
	var features []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.SSE2, "sse2"},
		{cpuid.AVX, "avx"},
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "asimd"},
	} {
		if cpuid.CPU.Supports(f.id) {
			features = append(features, f.name)
		}
	}
	return features
}
