package gstm

import (
	"errors"
	"math/rand"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/go-gstm/blueprint"
)

func TestCodecRoundTrip(t *testing.T) {
	custom := blueprint.Blueprint{
		{{4, 8}, {3}, {2}},
		{{}, {5, 6}, {7, 3}},
		{{2}, {2}, {}},
	}
	bp := blueprint.Normalize(custom, 6, 3)
	net, err := CreateNetworks(bp, 3, 6, 2, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatal(err)
	}

	data, err := Marshal(net)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	loaded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if loaded.VectorSize != 3 || loaded.MemorySize != 6 || loaded.Channels != 2 {
		t.Errorf("Unexpected sizes: vector %d memory %d channels %d", loaded.VectorSize, loaded.MemorySize, loaded.Channels)
	}
	if loaded.Blueprint.String() != net.Blueprint.String() {
		t.Errorf("Blueprint changed: %s vs %s", loaded.Blueprint, net.Blueprint)
	}

	want, wantNames := GetParams(net)
	got, gotNames := GetParams(loaded)
	if len(got) != len(want) {
		t.Fatalf("Expected %d parameters, got %d", len(want), len(got))
	}
	for i := range want {
		if gotNames[i] != wantNames[i] {
			t.Errorf("parameter %d: name %q, expected %q", i, gotNames[i], wantNames[i])
		}
		for j := range want[i].Data {
			if got[i].Data[j] != want[i].Data[j] {
				t.Fatalf("%s differs at %d", wantNames[i], j)
			}
		}
		if !got[i].RequiresGrad() {
			t.Errorf("%s lost requires-grad after load", gotNames[i])
		}
	}

	// identical weights give identical outputs
	seq := randomSequence(rand.New(rand.NewSource(2)), 3, 2, 3)
	a, err := Propagate(net, seq, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Propagate(loaded, seq, 0)
	if err != nil {
		t.Fatal(err)
	}
	av, bv := a.Values(), b.Values()
	for ti := range av {
		for c := range av[ti] {
			for i := range av[ti][c] {
				if av[ti][c][i] != bv[ti][c][i] {
					t.Fatalf("outputs differ at timestep %d channel %d", ti, c)
				}
			}
		}
	}
}

func TestUnmarshalErrors(t *testing.T) {
	net := testNetwork(t, 1, 3, 4)
	good, err := Marshal(net)
	if err != nil {
		t.Fatal(err)
	}

	var wrongVersion []byte
	wrongVersion = protowire.AppendTag(wrongVersion, fieldMagic, protowire.BytesType)
	wrongVersion = protowire.AppendString(wrongVersion, formatMagic)
	wrongVersion = appendUint(wrongVersion, fieldVersion, FormatVersion+1)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrMalformed},
		{"garbage", []byte{0xff, 0xff, 0xff}, ErrMalformed},
		{"truncated", good[:len(good)/2], ErrMalformed},
		{"future version", wrongVersion, ErrVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

// encodeNetwork writes a network record by hand so that the header can
// disagree with the weights that follow it.
func encodeNetwork(vector, memory, channels uint64, bp blueprint.Blueprint, weights *Network) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMagic, protowire.BytesType)
	b = protowire.AppendString(b, formatMagic)
	b = appendUint(b, fieldVersion, FormatVersion)
	b = appendUint(b, fieldVectorSize, vector)
	b = appendUint(b, fieldMemorySize, memory)
	b = appendUint(b, fieldChannels, channels)
	for _, mod := range bp {
		var mb []byte
		for _, stage := range mod {
			var sb []byte
			sb = protowire.AppendTag(sb, fieldWidths, protowire.BytesType)
			sb = protowire.AppendBytes(sb, packInts(stage))
			mb = protowire.AppendTag(mb, fieldStage, protowire.BytesType)
			mb = protowire.AppendBytes(mb, sb)
		}
		b = protowire.AppendTag(b, fieldModule, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	if weights != nil {
		params, names := GetParams(weights)
		for i, p := range params {
			b = protowire.AppendTag(b, fieldParam, protowire.BytesType)
			b = protowire.AppendBytes(b, encodeParam(names[i], p))
		}
	}
	return b
}

func TestUnmarshalRejectsOversizeHeader(t *testing.T) {
	net := testNetwork(t, 1, 3, 4)
	tiny := blueprint.Blueprint{{{1}, {1}, {1}}}
	wide := net.Blueprint.Clone()
	wide[0][0] = []int{1 << 40}

	tests := []struct {
		name string
		data []byte
	}{
		{"huge channels without weights", encodeNetwork(1, 1, 1<<50, tiny, nil)},
		{"huge channels with weights", encodeNetwork(3, 4, 1<<50, net.Blueprint, net)},
		{"huge vector", encodeNetwork(1<<40, 4, 1, net.Blueprint, net)},
		{"huge memory", encodeNetwork(3, 1<<40, 1, net.Blueprint, net)},
		{"huge width", encodeNetwork(3, 4, 1, wide, net)},
		{"zero channels", encodeNetwork(3, 4, 0, net.Blueprint, net)},
		{"missing weights", encodeNetwork(3, 4, 1, net.Blueprint, nil)},
		{"more channels than weights", encodeNetwork(3, 4, 2, net.Blueprint, net)},
		{"smaller vector than weights", encodeNetwork(2, 4, 1, net.Blueprint, net)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := Unmarshal(tt.data)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected %v, got %v", ErrMalformed, err)
			}
			if loaded != nil {
				t.Error("Expected no network")
			}
		})
	}

	// the same writer reproduces a valid record
	loaded, err := Unmarshal(encodeNetwork(3, 4, 1, net.Blueprint, net))
	if err != nil {
		t.Fatalf("Unmarshal of a consistent record failed: %v", err)
	}
	if loaded.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", loaded.Channels)
	}
}
