package gstm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/go-gstm/blueprint"
	"github.com/tsawler/go-gstm/tensor"
)

// The network file is a protobuf message written without generated code:
//
//	message Network {
//	  string magic = 1;
//	  uint32 version = 2;
//	  uint32 vector_size = 3;
//	  uint32 memory_size = 4;
//	  uint32 channels = 5;
//	  repeated Module modules = 6;   // Module { repeated Stage stages = 1; }
//	  repeated Param params = 7;     //  Stage { repeated uint32 widths = 1 [packed]; }
//	}
//	message Param { string name = 1; repeated uint32 shape = 2 [packed]; repeated double data = 3 [packed]; }
const (
	formatMagic   = "gstm-network"
	FormatVersion = 1
)

const (
	fieldMagic      protowire.Number = 1
	fieldVersion    protowire.Number = 2
	fieldVectorSize protowire.Number = 3
	fieldMemorySize protowire.Number = 4
	fieldChannels   protowire.Number = 5
	fieldModule     protowire.Number = 6
	fieldParam      protowire.Number = 7

	fieldStage  protowire.Number = 1
	fieldWidths protowire.Number = 1

	fieldParamName  protowire.Number = 1
	fieldParamShape protowire.Number = 2
	fieldParamData  protowire.Number = 3
)

var (
	// ErrMalformed reports data that is not a network encoding
	ErrMalformed = errors.New("malformed network encoding")
	// ErrVersion reports an encoding written by an incompatible format version
	ErrVersion = errors.New("unsupported network format version")
)

// Marshal encodes the network's topology and weights
func Marshal(net *Network) ([]byte, error) {
	params, names := GetParams(net)

	size := 64
	for _, p := range params {
		size += 16 + len(p.Data)*8
	}
	b := make([]byte, 0, size)

	b = protowire.AppendTag(b, fieldMagic, protowire.BytesType)
	b = protowire.AppendString(b, formatMagic)
	b = appendUint(b, fieldVersion, FormatVersion)
	b = appendUint(b, fieldVectorSize, uint64(net.VectorSize))
	b = appendUint(b, fieldMemorySize, uint64(net.MemorySize))
	b = appendUint(b, fieldChannels, uint64(net.Channels))

	for _, mod := range net.Blueprint {
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

	for i, p := range params {
		b = protowire.AppendTag(b, fieldParam, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeParam(names[i], p))
	}
	return b, nil
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func packInts(values []int) []byte {
	var b []byte
	for _, v := range values {
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func encodeParam(name string, p *tensor.Tensor) []byte {
	b := make([]byte, 0, len(name)+16+len(p.Data)*8)
	b = protowire.AppendTag(b, fieldParamName, protowire.BytesType)
	b = protowire.AppendString(b, name)
	b = protowire.AppendTag(b, fieldParamShape, protowire.BytesType)
	b = protowire.AppendBytes(b, packInts(p.Shape))

	data := make([]byte, 0, len(p.Data)*8)
	for _, v := range p.Data {
		data = protowire.AppendFixed64(data, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, fieldParamData, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

type decodedParam struct {
	name  string
	shape []int
	data  []float64
}

// Unmarshal rebuilds a network from Marshal's output. The result is placed
// on the CPU.
func Unmarshal(b []byte) (*Network, error) {
	var (
		magic                  string
		version                uint64
		vectorSize, memorySize uint64
		channels               uint64
		bp                     blueprint.Blueprint
		params                 []decodedParam
		sawVersion             bool
	)

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMagic && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			magic = v
			return n, nil
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			version, sawVersion = v, true
			return n, nil
		case num == fieldVectorSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			vectorSize = v
			return n, nil
		case num == fieldMemorySize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			memorySize = v
			return n, nil
		case num == fieldChannels && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			channels = v
			return n, nil
		case num == fieldModule && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			mod, err := decodeModule(v)
			if err != nil {
				return 0, err
			}
			bp = append(bp, mod)
			return n, nil
		case num == fieldParam && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			p, err := decodeParam(v)
			if err != nil {
				return 0, err
			}
			params = append(params, p)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}

	if magic != formatMagic {
		return nil, fmt.Errorf("%w: missing network header", ErrMalformed)
	}
	if !sawVersion || version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrVersion, version, FormatVersion)
	}

	if err := checkSizes(bp, vectorSize, memorySize, channels, params); err != nil {
		return nil, err
	}

	net, err := CreateNetworks(bp, int(vectorSize), int(memorySize), int(channels), rand.New(rand.NewSource(defaultSeed)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	tensors, names := GetParams(net)
	if len(tensors) != len(params) {
		return nil, fmt.Errorf("%w: expected %d parameters, found %d", ErrMalformed, len(tensors), len(params))
	}
	for i, p := range params {
		if p.name != names[i] {
			return nil, fmt.Errorf("%w: parameter %d is %q, expected %q", ErrMalformed, i, p.name, names[i])
		}
		if !equalShape(p.shape, tensors[i].Shape) {
			return nil, fmt.Errorf("%w: parameter %s has shape %v, expected %v", ErrMalformed, p.name, p.shape, tensors[i].Shape)
		}
		if err := tensors[i].SetData(p.data); err != nil {
			return nil, fmt.Errorf("%w: parameter %s: %v", ErrMalformed, p.name, err)
		}
	}
	return net, nil
}

// checkSizes compares the header with the decoded parameters before any
// allocation. Every layer contributes a weight and a bias, so the header
// fixes both the tensor count and the element total, and no single size can
// exceed the number of values the payload actually holds.
func checkSizes(bp blueprint.Blueprint, vectorSize, memorySize, channels uint64, params []decodedParam) error {
	var total uint64
	for _, p := range params {
		total += uint64(len(p.data))
	}
	if channels == 0 || channels > uint64(len(params)) {
		return fmt.Errorf("%w: %d channels for %d parameters", ErrMalformed, channels, len(params))
	}
	if vectorSize == 0 || vectorSize > total || memorySize == 0 || memorySize > total {
		return fmt.Errorf("%w: sizes vector %d memory %d do not fit %d values", ErrMalformed, vectorSize, memorySize, total)
	}
	inputSize := vectorSize + memorySize
	if inputSize > total {
		return fmt.Errorf("%w: input size %d does not fit %d values", ErrMalformed, inputSize, total)
	}

	var tensors, elems uint64
	for m, mod := range bp {
		for s, stage := range mod {
			prev := inputSize
			for _, w := range stage {
				if w <= 0 || uint64(w) > total {
					return fmt.Errorf("%w: module %d stage %d has width %d", ErrMalformed, m, s, w)
				}
				out := uint64(w)
				if prev > total/out {
					return fmt.Errorf("%w: module %d stage %d layer %dx%d does not fit %d values", ErrMalformed, m, s, prev, out, total)
				}
				elems += prev*out + out
				if elems > total {
					return fmt.Errorf("%w: blueprint needs more than %d values", ErrMalformed, total)
				}
				tensors += 2
				prev = out
			}
		}
	}

	if tensors == 0 || uint64(len(params))%tensors != 0 || uint64(len(params))/tensors != channels {
		return fmt.Errorf("%w: %d parameters do not match %d channels of %d tensors", ErrMalformed, len(params), channels, tensors)
	}
	if total%elems != 0 || total/elems != channels {
		return fmt.Errorf("%w: %d values do not match %d channels of %d values", ErrMalformed, total, channels, elems)
	}
	return nil
}

// walk calls fn for every field of a message. fn consumes the field value
// and returns the number of bytes used, negative on a protowire error.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func decodeModule(b []byte) (blueprint.Module, error) {
	var mod blueprint.Module
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldStage || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		var stage blueprint.Stage
		err := walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num != fieldWidths || typ != protowire.BytesType {
				return protowire.ConsumeFieldValue(num, typ, b), nil
			}
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			widths, err := unpackInts(packed)
			if err != nil {
				return 0, err
			}
			stage = append(stage, widths...)
			return n, nil
		})
		if err != nil {
			return 0, err
		}
		mod = append(mod, stage)
		return n, nil
	})
	return mod, err
}

func decodeParam(b []byte) (decodedParam, error) {
	var p decodedParam
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldParamName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.name = v
			return n, nil
		case num == fieldParamShape && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			shape, err := unpackInts(v)
			if err != nil {
				return 0, err
			}
			p.shape = shape
			return n, nil
		case num == fieldParamData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if len(v)%8 != 0 {
				return 0, fmt.Errorf("%w: parameter data length %d is not a multiple of 8", ErrMalformed, len(v))
			}
			p.data = make([]float64, 0, len(v)/8)
			for len(v) > 0 {
				bits, m := protowire.ConsumeFixed64(v)
				if m < 0 {
					return m, nil
				}
				p.data = append(p.data, math.Float64frombits(bits))
				v = v[m:]
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return p, err
}

func unpackInts(b []byte) ([]int, error) {
	var out []int
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		out = append(out, int(v))
		b = b[n:]
	}
	return out, nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
