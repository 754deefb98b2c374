//go:build cuda

package device

import "gorgonia.org/cu"

// probeAccelerator reports the first CUDA device, if any
func probeAccelerator() (int, string, bool) {
	count, err := cu.NumDevices()
	if err != nil || count == 0 {
		return 0, "", false
	}
	name, err := cu.Device(0).Name()
	if err != nil {
		name = "cuda"
	}
	return 0, name, true
}
