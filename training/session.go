package training

import (
	"fmt"
	"path/filepath"

	"github.com/tsawler/go-gstm/checkpoints"
	"github.com/tsawler/go-gstm/device"
	"github.com/tsawler/go-gstm/optimizer"
)

// Session file names, relative to the session directory
const (
	ModelFile = "model.pkl"
	MetaFile  = "meta.pkl"
)

// FallbackLR is the learning rate of the optimizer created when a session
// has a model but no readable optimizer state
const FallbackLR = 0.001

// SaveSession writes the network to dir/model.pkl and, when opt is not nil,
// its state to dir/meta.pkl. The two writes are independent.
func SaveSession(dir string, m *Model, opt optimizer.Optimizer) error {
	if err := checkpoints.SaveModel(filepath.Join(dir, ModelFile), m.Network); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	if opt == nil {
		return nil
	}
	if err := checkpoints.SaveOptimizer(filepath.Join(dir, MetaFile), opt); err != nil {
		return fmt.Errorf("failed to save optimizer: %w", err)
	}
	return nil
}

// LoadSession restores a session on the default device. See LoadSessionOn.
func LoadSession(dir string) (*Model, optimizer.Optimizer, error) {
	return LoadSessionOn(dir, device.Default())
}

// LoadSessionOn restores the model and optimizer saved in dir onto dev.
//
// A model that cannot be loaded yields a *checkpoints.LoadError and no
// model; checkpoints.IsNoSession tells a missing or unusable session apart
// from other failures. Unreadable optimizer state is not an error: the
// model is paired with a fresh plain descent optimizer at FallbackLR.
// Otherwise an optimizer of the saved kind is rebuilt with a zero learning
// rate and its state, hyperparameters included, is loaded from the file.
func LoadSessionOn(dir string, dev device.Device) (*Model, optimizer.Optimizer, error) {
	net, err := checkpoints.LoadModel(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, nil, err
	}
	m := wrapNetwork(net, dev)

	state, err := checkpoints.LoadOptimizer(filepath.Join(dir, MetaFile))
	if err != nil {
		opt, err := MakeOptimizer(m, FallbackLR, optimizer.PlainDescent)
		if err != nil {
			return nil, nil, err
		}
		return m, opt, nil
	}

	opt, err := MakeOptimizer(m, 0, state.Kind())
	if err != nil {
		return nil, nil, err
	}
	if err := opt.LoadState(state); err != nil {
		return nil, nil, fmt.Errorf("failed to restore optimizer state: %w", err)
	}
	return m, opt, nil
}
