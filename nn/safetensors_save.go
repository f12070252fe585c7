package nn

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// SaveParams writes the parameter bundle to a safetensors file using
// PyTorch state-dict names. dtype is F32, F16 or BF16.
func SaveParams(path string, p *Params, dtype string) error {
	data, err := SerializeParams(p, dtype)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SerializeParams converts the parameter bundle to safetensors bytes. A
// tensor whose length disagrees with its layer shape fails with
// ErrConfiguration.
func SerializeParams(p *Params, dtype string) ([]byte, error) {
	if p == nil {
		return nil, configErrorf("nil parameter bundle")
	}
	tensors := make(map[string]*Tensor[float32])
	for _, ref := range p.tensorRefs() {
		if n := shapeSize(ref.shape); len(*ref.data) != n {
			return nil, configErrorf("%s has %d values, shape %v needs %d", ref.name, len(*ref.data), ref.shape, n)
		}
		tensors[ref.name] = NewTensorFromSlice(*ref.data, ref.shape...)
	}
	return SerializeSafetensors(tensors, dtype)
}

// SerializeSafetensors encodes tensors in safetensors format, every tensor
// stored with the same dtype. Names are written in sorted order so the
// output is deterministic.
func SerializeSafetensors(tensors map[string]*Tensor[float32], dtype string) ([]byte, error) {
	width := dtypeWidth(dtype)
	if width == 0 {
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]TensorInfo, len(names))
	currentOffset := 0
	for _, name := range names {
		size := len(tensors[name].Data) * width
		header[name] = TensorInfo{
			DType:  dtype,
			Shape:  tensors[name].Shape,
			Offset: []int{currentOffset, currentOffset + size},
		}
		currentOffset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	// [header_size (8 bytes)] [header JSON] [tensor data]
	result := make([]byte, 8+len(headerJSON)+currentOffset)
	binary.LittleEndian.PutUint64(result[0:8], uint64(len(headerJSON)))
	copy(result[8:], headerJSON)

	dest := result[8+len(headerJSON):]
	for _, name := range names {
		info := header[name]
		encodeTensor(dest[info.Offset[0]:info.Offset[1]], tensors[name].Data, dtype)
	}
	return result, nil
}

func encodeTensor(dest []byte, values []float32, dtype string) {
	switch dtype {
	case "F32":
		for i, v := range values {
			binary.LittleEndian.PutUint32(dest[i*4:], math.Float32bits(v))
		}
	case "F16":
		for i, v := range values {
			binary.LittleEndian.PutUint16(dest[i*2:], float16.Fromfloat32(v).Bits())
		}
	case "BF16":
		copy(dest, bfloat16.EncodeFloat32(values))
	}
}
