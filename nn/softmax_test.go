package nn

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCPUBackendSoftmax checks rows against hand-computed distributions
func TestCPUBackendSoftmax(t *testing.T) {
	scores := []float32{
		0, float32(math.Log(3)),
		2, 2 + 2*float32(math.Log(3)), // temperature halves the gap
		1000, 1000,
	}
	require.NoError(t, CPUBackend{}.SoftmaxRows(scores[:2], 1, 2, 1))
	require.NoError(t, CPUBackend{}.SoftmaxRows(scores[2:], 2, 2, 2))

	for i, want := range []float64{0.25, 0.75, 0.25, 0.75, 0.5, 0.5} {
		assert.InDelta(t, want, scores[i], 1e-6, "element %d", i)
	}
}

// TestCPUBackendWorkers verifies that chunking does not change results
func TestCPUBackendWorkers(t *testing.T) {
	const rows, cols = 1500, 9
	rng := rand.New(rand.NewSource(21))
	scores := randomTensor(rng, rows, cols).Data
	for i := range scores {
		scores[i] *= 50
	}

	want := slices.Clone(scores)
	require.NoError(t, CPUBackend{Workers: 1}.SoftmaxRows(want, rows, cols, 3))
	for _, workers := range []int{2, 7, 64} {
		got := slices.Clone(scores)
		require.NoError(t, CPUBackend{Workers: workers}.SoftmaxRows(got, rows, cols, 3))
		assert.Equal(t, want, got, "workers %d", workers)
	}

	for r := 0; r < rows; r++ {
		sum := 0.0
		for _, p := range want[r*cols : (r+1)*cols] {
			sum += float64(p)
		}
		require.InDelta(t, 1.0, sum, 1e-5)
	}
}

// TestCPUBackendErrors covers empty and short buffers
func TestCPUBackendErrors(t *testing.T) {
	assert.NoError(t, CPUBackend{}.SoftmaxRows(nil, 0, 4, 1))
	assert.ErrorIs(t, CPUBackend{}.SoftmaxRows(make([]float32, 5), 2, 3, 1), ErrShapeMismatch)
}

// TestCheckRowSums flags drifted and non-finite rows and caps the record
func TestCheckRowSums(t *testing.T) {
	// (C=2, B=1, N=2, K=2)
	prob := []float32{
		0.5, 0.5,
		0.7, 0.7,
		float32(math.NaN()), 0,
		0.25, 0.75,
	}
	warnings, count := checkRowSums(prob, 2, 1, 2, 2, DefaultSumTolerance)
	require.Equal(t, 2, count)
	assert.Equal(t, NumericalWarning{Band: 0, Batch: 0, Row: 1, Sum: warnings[0].Sum}, warnings[0])
	assert.InDelta(t, 1.4, warnings[0].Sum, 1e-6)
	assert.Equal(t, 1, warnings[1].Band)
	assert.Equal(t, 0, warnings[1].Row)
	assert.True(t, math.IsNaN(warnings[1].Sum))

	many := make([]float32, 100*3)
	warnings, count = checkRowSums(many, 1, 1, 100, 3, DefaultSumTolerance)
	assert.Equal(t, 100, count)
	assert.Len(t, warnings, maxRecordedWarnings)
	assert.Contains(t, warnings[5].String(), "row 5")
}
