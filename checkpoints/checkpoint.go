package checkpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/tsawler/go-gstm/gstm"
	"github.com/tsawler/go-gstm/largeio"
	"github.com/tsawler/go-gstm/optimizer"
)

// Reason classifies why a checkpoint could not be loaded
type Reason int

const (
	NotFound Reason = iota
	Corrupt
	VersionMismatch
)

func (r Reason) String() string {
	switch r {
	case NotFound:
		return "not found"
	case Corrupt:
		return "corrupt"
	case VersionMismatch:
		return "version mismatch"
	default:
		return "unknown"
	}
}

// LoadError reports a checkpoint file that could not be loaded
type LoadError struct {
	Path   string
	Reason Reason
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a load failure caused by a missing file
func IsNotFound(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Reason == NotFound
}

// IsNoSession reports whether err means there is no usable saved session,
// whatever the reason. Callers that start fresh instead of failing use it.
func IsNoSession(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

func loadError(path string, err error) *LoadError {
	reason := Corrupt
	switch {
	case errors.Is(err, fs.ErrNotExist):
		reason = NotFound
	case errors.Is(err, gstm.ErrVersion):
		reason = VersionMismatch
	}
	return &LoadError{Path: path, Reason: reason, Err: err}
}

// SaveModel writes the network's binary encoding to path
func SaveModel(path string, net *gstm.Network) error {
	data, err := gstm.Marshal(net)
	if err != nil {
		return fmt.Errorf("failed to encode model: %v", err)
	}
	return writeFile(path, data)
}

// LoadModel reads a network written by SaveModel. Failures are *LoadError.
func LoadModel(path string) (*gstm.Network, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, loadError(path, err)
	}
	net, err := gstm.Unmarshal(data)
	if err != nil {
		return nil, loadError(path, err)
	}
	return net, nil
}

// SaveOptimizer writes the optimizer's state to path as JSON
func SaveOptimizer(path string, opt optimizer.Optimizer) error {
	state, err := opt.GetState()
	if err != nil {
		return fmt.Errorf("failed to extract optimizer state: %v", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode optimizer state: %v", err)
	}
	return writeFile(path, data)
}

// LoadOptimizer reads an optimizer state written by SaveOptimizer.
// Failures are *LoadError.
func LoadOptimizer(path string) (*optimizer.State, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, loadError(path, err)
	}
	var state optimizer.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, loadError(path, err)
	}
	return &state, nil
}

func writeFile(path string, data []byte) error {
	file, err := largeio.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	if err := largeio.WriteAll(file, data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	file, err := largeio.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	return largeio.ReadFull(file, info.Size())
}
