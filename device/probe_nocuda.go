//go:build !cuda

package device

func probeAccelerator() (int, string, bool) {
	return 0, "", false
}
