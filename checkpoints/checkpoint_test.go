package checkpoints

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tsawler/go-gstm/blueprint"
	"github.com/tsawler/go-gstm/gstm"
	"github.com/tsawler/go-gstm/optimizer"
	"github.com/tsawler/go-gstm/tensor"
)

func testNetwork(t *testing.T) *gstm.Network {
	t.Helper()
	net, err := gstm.CreateNetworks(blueprint.Default(4, 3), 3, 4, 2, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatalf("Failed to create test network: %v", err)
	}
	return net
}

func TestModelSaveLoad(t *testing.T) {
	net := testNetwork(t)
	path := filepath.Join(t.TempDir(), "model.pkl")

	if err := SaveModel(path, net); err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}

	want, _ := gstm.GetParams(net)
	got, _ := gstm.GetParams(loaded)
	if len(got) != len(want) {
		t.Fatalf("Expected %d parameters, got %d", len(want), len(got))
	}
	for i := range want {
		for j := range want[i].Data {
			if got[i].Data[j] != want[i].Data[j] {
				t.Fatalf("parameter %d differs at %d", i, j)
			}
		}
	}
}

func TestLoadModelReasons(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.pkl")
	if err := os.WriteFile(garbage, []byte("not a network"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.pkl")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		reason Reason
	}{
		{"missing", filepath.Join(dir, "missing.pkl"), NotFound},
		{"garbage", garbage, Corrupt},
		{"empty", empty, Corrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModel(tt.path)
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Expected *LoadError, got %v", err)
			}
			if le.Reason != tt.reason {
				t.Errorf("Expected reason %s, got %s", tt.reason, le.Reason)
			}
			if le.Path != tt.path {
				t.Errorf("Expected path %s, got %s", tt.path, le.Path)
			}
			if !IsNoSession(err) {
				t.Error("IsNoSession should accept every load failure")
			}
			if IsNotFound(err) != (tt.reason == NotFound) {
				t.Errorf("IsNotFound = %v for reason %s", IsNotFound(err), tt.reason)
			}
			if !strings.Contains(err.Error(), tt.reason.String()) {
				t.Errorf("Error message %q does not name the reason", err.Error())
			}
		})
	}
}

func TestLoadModelVersionMismatch(t *testing.T) {
	net := testNetwork(t)
	data, err := gstm.Marshal(net)
	if err != nil {
		t.Fatal(err)
	}
	// the version varint follows the magic string: tag, length, magic, tag, version
	idx := 2 + len("gstm-network") + 1
	if data[idx] != gstm.FormatVersion {
		t.Fatalf("unexpected layout, byte %d is %d", idx, data[idx])
	}
	data[idx] = gstm.FormatVersion + 1

	path := filepath.Join(t.TempDir(), "model.pkl")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadModel(path)
	var le *LoadError
	if !errors.As(err, &le) || le.Reason != VersionMismatch {
		t.Fatalf("Expected version mismatch, got %v", err)
	}
	if !errors.Is(err, gstm.ErrVersion) {
		t.Error("LoadError should unwrap to gstm.ErrVersion")
	}
}

func TestOptimizerSaveLoad(t *testing.T) {
	net := testNetwork(t)
	params, _ := gstm.GetParams(net)
	for _, p := range params {
		g, _ := tensor.Full(p.Shape, 0.1, tensor.CPU)
		if err := p.SetGrad(g); err != nil {
			t.Fatal(err)
		}
	}
	opt, err := optimizer.New(optimizer.AdaptiveMoment, params, 0.02)
	if err != nil {
		t.Fatal(err)
	}
	if err := opt.Step(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "meta.pkl")
	if err := SaveOptimizer(path, opt); err != nil {
		t.Fatalf("SaveOptimizer failed: %v", err)
	}
	state, err := LoadOptimizer(path)
	if err != nil {
		t.Fatalf("LoadOptimizer failed: %v", err)
	}
	if state.Kind() != optimizer.AdaptiveMoment {
		t.Errorf("Expected adam state, got %v", state.Kind())
	}
	if len(state.StateData) != 2*len(params) {
		t.Errorf("Expected %d state tensors, got %d", 2*len(params), len(state.StateData))
	}
}

func TestLoadOptimizerErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadOptimizer(filepath.Join(dir, "meta.pkl")); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}

	bad := filepath.Join(dir, "bad.pkl")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadOptimizer(bad)
	var le *LoadError
	if !errors.As(err, &le) || le.Reason != Corrupt {
		t.Errorf("Expected corrupt, got %v", err)
	}
}
