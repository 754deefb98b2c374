// Package training wraps the gated-sequence network with everything needed
// to train it: model assembly, the forward/backward/step primitives, session
// persistence, a synthetic dataset and a logged training loop.
package training

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-gstm/blueprint"
	"github.com/tsawler/go-gstm/device"
	"github.com/tsawler/go-gstm/gstm"
	"github.com/tsawler/go-gstm/tensor"
)

// ModelConfig describes the network to assemble
type ModelConfig struct {
	Channels   int
	VectorSize int
	MemorySize int

	// Blueprint is an optional custom architecture; nil selects the default
	Blueprint blueprint.Blueprint

	// Seed for weight initialization; 0 uses the network's fixed default
	Seed int64
}

// Model owns an assembled network and its parameter lists
type Model struct {
	Network *gstm.Network
	Params  []*tensor.Tensor
	Names   []string

	device device.Device
}

// MakeModel normalizes the blueprint, builds the network, extracts its
// parameters and places them on dev
func MakeModel(dev device.Device, cfg ModelConfig) (*Model, error) {
	if cfg.Channels <= 0 || cfg.VectorSize <= 0 || cfg.MemorySize <= 0 {
		return nil, fmt.Errorf("channels, vector size and memory size must be positive, got %d, %d, %d",
			cfg.Channels, cfg.VectorSize, cfg.MemorySize)
	}

	bp := blueprint.Normalize(cfg.Blueprint, cfg.MemorySize, cfg.VectorSize)

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	net, err := gstm.CreateNetworks(bp, cfg.VectorSize, cfg.MemorySize, cfg.Channels, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create networks: %w", err)
	}
	return wrapNetwork(net, dev), nil
}

// wrapNetwork places net on dev and extracts its parameter lists
func wrapNetwork(net *gstm.Network, dev device.Device) *Model {
	net.ToDevice(dev.Type)
	params, names := gstm.GetParams(net)
	return &Model{
		Network: net,
		Params:  params,
		Names:   names,
		device:  dev,
	}
}

// Forward runs the network over seq. timesteps <= 0 infers the number of
// steps from the input length.
func (m *Model) Forward(seq gstm.Sequence, timesteps int) (*gstm.Output, error) {
	return gstm.Propagate(m.Network, seq, timesteps)
}

// Device returns where the model's parameters are placed
func (m *Model) Device() device.Device {
	return m.device
}

// ParameterCount returns the number of scalar weights
func (m *Model) ParameterCount() int {
	return m.Network.ParameterCount()
}
