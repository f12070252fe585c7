package nn

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// TensorInfo is one entry of a safetensors header.
type TensorInfo struct {
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset []int  `json:"data_offsets"`
}

// LoadSafetensors reads a safetensors file and returns its tensors by name,
// widened to float32.
func LoadSafetensors(path string) (map[string]*Tensor[float32], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return LoadSafetensorsFromBytes(data)
}

// LoadSafetensorsFromBytes parses safetensors data held in memory.
func LoadSafetensorsFromBytes(data []byte) (map[string]*Tensor[float32], error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short: need at least 8 bytes for header size")
	}

	headerSize := binary.LittleEndian.Uint64(data[0:8])
	if headerSize > uint64(len(data)-8) {
		return nil, fmt.Errorf("data too short: header size %d but only %d bytes available", headerSize, len(data)-8)
	}

	var header map[string]json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(data[8 : 8+headerSize])).Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	payload := data[8+headerSize:]

	names := make([]string, 0, len(header))
	for name := range header {
		if name != "__metadata__" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	tensors := make(map[string]*Tensor[float32], len(names))
	for _, name := range names {
		var info TensorInfo
		if err := json.Unmarshal(header[name], &info); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		values, err := decodeTensor(name, info, payload)
		if err != nil {
			return nil, err
		}
		tensors[name] = NewTensorFromSlice(values, info.Shape...)
	}
	return tensors, nil
}

func decodeTensor(name string, info TensorInfo, payload []byte) ([]float32, error) {
	width := dtypeWidth(info.DType)
	if width == 0 {
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	if len(info.Offset) != 2 {
		return nil, fmt.Errorf("tensor %s: malformed data_offsets %v", name, info.Offset)
	}
	for _, d := range info.Shape {
		if d < 0 {
			return nil, fmt.Errorf("tensor %s: negative dimension in %v", name, info.Shape)
		}
	}

	n := shapeSize(info.Shape)
	start, end := info.Offset[0], info.Offset[1]
	if start < 0 || end > len(payload) || end-start != n*width {
		return nil, fmt.Errorf("tensor %s: data out of bounds", name)
	}
	raw := payload[start:end]

	switch info.DType {
	case "F32":
		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return values, nil
	case "F16":
		values := make([]float32, n)
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return values, nil
	default: // BF16
		return bfloat16.DecodeFloat32(raw), nil
	}
}

// dtypeWidth returns the element size of the dtypes the unit reads and writes.
func dtypeWidth(dtype string) int {
	switch dtype {
	case "F32":
		return 4
	case "F16", "BF16":
		return 2
	default:
		return 0
	}
}

// LoadParams reads a checkpoint saved with SaveParams or exported from a
// PyTorch state dict and validates it against cfg.
func LoadParams(path string, cfg Config) (*Params, error) {
	tensors, err := LoadSafetensors(path)
	if err != nil {
		return nil, err
	}
	return ParamsFromTensors(tensors, cfg)
}

// ParamsFromTensors builds a parameter bundle from named tensors. Every
// tensor the configuration needs must be present with its exact shape;
// extra tensors are ignored.
func ParamsFromTensors(tensors map[string]*Tensor[float32], cfg Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := NewParams(cfg)
	for _, ref := range p.tensorRefs() {
		t, ok := tensors[ref.name]
		if !ok {
			return nil, configErrorf("checkpoint is missing tensor %s", ref.name)
		}
		if !slices.Equal(t.Shape, ref.shape) {
			return nil, configErrorf("tensor %s has shape %v, want %v", ref.name, t.Shape, ref.shape)
		}
		copy(*ref.data, t.Data)
	}
	return p, nil
}
