package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTensorCreation verifies basic tensor operations
func TestTensorCreation(t *testing.T) {
	tensor := NewTensor[float32](3, 4)
	assert.Equal(t, 12, tensor.Size())
	assert.Equal(t, []int{3, 4}, tensor.Shape)
	assert.Equal(t, []int{4, 1}, tensor.Strides)

	tensor2 := NewTensorFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, 6, tensor2.Size())
	assert.Equal(t, 6.0, tensor2.At(1, 2))
	assert.Equal(t, 2.0, tensor2.At(0, 1))

	assert.Panics(t, func() { NewTensorFromSlice([]float32{1, 2, 3}, 2, 2) })
}

// TestTensorClone verifies tensor cloning
func TestTensorClone(t *testing.T) {
	original := NewTensorFromSlice([]int32{1, 2, 3, 4}, 4)
	clone := original.Clone()

	original.Data[0] = 100
	original.Shape[0] = 7

	assert.Equal(t, int32(1), clone.Data[0], "clone was modified when original changed")
	assert.Equal(t, []int{4}, clone.Shape)
}

// TestTensorReshape verifies tensor reshaping
func TestTensorReshape(t *testing.T) {
	tensor := NewTensorFromSlice([]float32{1, 2, 3, 4, 5, 6}, 6)
	reshaped := tensor.Reshape(2, 3)
	require.NotNil(t, reshaped)
	assert.Equal(t, []int{2, 3}, reshaped.Shape)

	// Views share storage
	reshaped.Data[0] = 9
	assert.Equal(t, float32(9), tensor.Data[0])

	assert.Nil(t, tensor.Reshape(2, 2), "invalid reshape should return nil")
}

// TestTensorDims4 verifies NCHW unpacking
func TestTensorDims4(t *testing.T) {
	n, c, h, w, ok := NewTensor[float32](2, 3, 4, 5).Dims4()
	require.True(t, ok)
	assert.Equal(t, []int{2, 3, 4, 5}, []int{n, c, h, w})

	_, _, _, _, ok = NewTensor[float32](2, 3).Dims4()
	assert.False(t, ok)

	var missing *Tensor[float32]
	_, _, _, _, ok = missing.Dims4()
	assert.False(t, ok)
}
