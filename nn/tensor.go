package nn

import (
	"fmt"
	"slices"
)

// Numeric is the set of element types a Tensor can hold.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Tensor is a dense row-major buffer with shape metadata.
type Tensor[T Numeric] struct {
	Data    []T
	Shape   []int
	Strides []int
}

// NewTensor allocates a zeroed tensor with the given shape.
func NewTensor[T Numeric](shape ...int) *Tensor[T] {
	return &Tensor[T]{
		Data:    make([]T, shapeSize(shape)),
		Shape:   slices.Clone(shape),
		Strides: rowMajorStrides(shape),
	}
}

// NewTensorFromSlice wraps data without copying. It panics when the data
// length does not match the shape.
func NewTensorFromSlice[T Numeric](data []T, shape ...int) *Tensor[T] {
	if len(data) != shapeSize(shape) {
		panic(fmt.Sprintf("tensor: %d elements cannot have shape %v", len(data), shape))
	}
	return &Tensor[T]{
		Data:    data,
		Shape:   slices.Clone(shape),
		Strides: rowMajorStrides(shape),
	}
}

// Size returns the number of elements.
func (t *Tensor[T]) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	return &Tensor[T]{
		Data:    slices.Clone(t.Data),
		Shape:   slices.Clone(t.Shape),
		Strides: slices.Clone(t.Strides),
	}
}

// Reshape returns a view with a new shape sharing the same data, or nil if
// the element count differs.
func (t *Tensor[T]) Reshape(shape ...int) *Tensor[T] {
	if shapeSize(shape) != len(t.Data) {
		return nil
	}
	return &Tensor[T]{
		Data:    t.Data,
		Shape:   slices.Clone(shape),
		Strides: rowMajorStrides(shape),
	}
}

// Dims4 unpacks an NCHW shape.
func (t *Tensor[T]) Dims4() (n, c, h, w int, ok bool) {
	if t == nil || len(t.Shape) != 4 {
		return 0, 0, 0, 0, false
	}
	return t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3], true
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor[T]) At(idx ...int) T {
	off := 0
	for i, v := range idx {
		off += v * t.Strides[i]
	}
	return t.Data[off]
}

func shapeSize(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}
