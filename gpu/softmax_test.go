package gpu_test

import (
	"bytes"
	"log/slog"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/pgcu/gpu"
	"github.com/openfluke/pgcu/nn"
)

var _ nn.Backend = (*gpu.SoftmaxKernel)(nil)

func newKernel(t *testing.T) *gpu.SoftmaxKernel {
	t.Helper()
	if err := gpu.EnsureGPU(); err != nil {
		t.Skipf("no WebGPU adapter: %v", err)
	}
	k, err := gpu.NewSoftmaxKernel(nil)
	require.NoError(t, err)
	t.Cleanup(k.Release)
	return k
}

// TestSoftmaxKernelMatchesCPU compares the GPU rows against the CPU backend.
func TestSoftmaxKernelMatchesCPU(t *testing.T) {
	k := newKernel(t)

	rng := rand.New(rand.NewSource(7))
	for _, tc := range []struct {
		name       string
		rows, cols int
	}{
		{"narrow", 33, 5},
		{"wide", 4, 700},
		{"coarse grid", 512, 64},
	} {
		t.Run(tc.name, func(t *testing.T) {
			scores := make([]float32, tc.rows*tc.cols)
			for i := range scores {
				scores[i] = float32(rng.NormFloat64() * 8)
			}
			want := slices.Clone(scores)
			require.NoError(t, nn.CPUBackend{}.SoftmaxRows(want, tc.rows, tc.cols, 4))

			got := slices.Clone(scores)
			require.NoError(t, k.SoftmaxRows(got, tc.rows, tc.cols, 4))

			assert.InDeltaSlice(t, want, got, 1e-5)
		})
	}
}

// TestSoftmaxKernelEmpty checks that empty inputs are a no-op.
func TestSoftmaxKernelEmpty(t *testing.T) {
	k := newKernel(t)
	assert.NoError(t, k.SoftmaxRows(nil, 0, 0, 1))
}

// TestSoftmaxKernelShortBuffer rejects a buffer smaller than rows*cols.
func TestSoftmaxKernelShortBuffer(t *testing.T) {
	k := newKernel(t)
	assert.Error(t, k.SoftmaxRows(make([]float32, 3), 2, 2, 1))
}

// TestSoftmaxKernelLogger checks that dispatches are logged to the kernel's
// own logger rather than the process default.
func TestSoftmaxKernelLogger(t *testing.T) {
	if err := gpu.EnsureGPU(); err != nil {
		t.Skipf("no WebGPU adapter: %v", err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	k, err := gpu.NewSoftmaxKernel(logger)
	require.NoError(t, err)
	t.Cleanup(k.Release)

	require.NoError(t, k.SoftmaxRows(make([]float32, 6), 2, 3, 1))
	assert.Contains(t, buf.String(), "gpu softmax")
	assert.Contains(t, buf.String(), "rows=2")
}

// TestSoftmaxKernelReleased rejects calls after Release.
func TestSoftmaxKernelReleased(t *testing.T) {
	k := newKernel(t)
	k.Release()
	assert.Error(t, k.SoftmaxRows(make([]float32, 4), 2, 2, 1))
}
