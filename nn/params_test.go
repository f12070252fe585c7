package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewParamsShapes checks layer shapes for the default configuration
func TestNewParamsShapes(t *testing.T) {
	cfg := DefaultConfig()
	p := NewParams(cfg)

	assert.Len(t, p.GPConv, 3)
	assert.Len(t, p.GMConv, 2)
	assert.Len(t, p.VPConv, 3)
	assert.Len(t, p.VMConv, 2)
	assert.Equal(t, 1, p.GPConv[0].InChannels)
	assert.Equal(t, 4, p.GPConv[1].InChannels)
	assert.Equal(t, 2, p.GPConv[0].Stride)
	assert.Equal(t, 8, p.FConv.InChannels)
	assert.Equal(t, 128, p.GConv.OutChannels)
	assert.Equal(t, 4, p.VConv.OutChannels)

	require.Len(t, p.FLinear, 4)
	assert.Len(t, p.FLinear[0].Weight, 32*128)
	assert.Equal(t, float32(1), p.GLinear[3].Gamma[31])

	assert.Equal(t, 54116, p.NumParams())
	assert.NoError(t, p.Validate(cfg))
}

// TestInitParamsBounds checks reproducibility and fan-in bounds
func TestInitParamsBounds(t *testing.T) {
	cfg := Config{Channel: 2, VecLen: 8, NumberBlocks: 2}
	a := InitParams(cfg, rand.New(rand.NewSource(1)))
	b := InitParams(cfg, rand.New(rand.NewSource(1)))
	c := InitParams(cfg, rand.New(rand.NewSource(2)))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.FConv.Kernel, c.FConv.Kernel)

	bound := float32(1 / math.Sqrt(float64(a.FConv.InChannels*9)))
	for _, w := range a.FConv.Kernel {
		require.LessOrEqual(t, float32(math.Abs(float64(w))), bound)
	}
	for _, w := range a.FLinear[1].Weight {
		require.LessOrEqual(t, float32(math.Abs(float64(w))), float32(1/math.Sqrt(8)))
	}
	assert.Equal(t, []float32{1, 1, 1, 1}, a.FLinear[0].Gamma)
	assert.Equal(t, []float32{0, 0, 0, 0}, a.FLinear[0].Beta)
}

// TestParamsValidate rejects bundles that do not match the configuration
func TestParamsValidate(t *testing.T) {
	cfg := Config{Channel: 2, VecLen: 8, NumberBlocks: 2}

	for _, tc := range []struct {
		name   string
		mutate func(*Params)
	}{
		{"short kernel", func(p *Params) { p.FPConv.Kernel = p.FPConv.Kernel[:3] }},
		{"wrong stride", func(p *Params) { p.GPConv[1].Stride = 1 }},
		{"missing block", func(p *Params) { p.VMConv = nil }},
		{"missing band", func(p *Params) { p.GLinear = p.GLinear[:1] }},
		{"short gamma", func(p *Params) { p.FLinear[1].Gamma = nil }},
		{"wrong head width", func(p *Params) { p.GConv = NewConv2DParams(4, 4, 3, 1, 1) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := NewParams(cfg)
			tc.mutate(p)
			assert.ErrorIs(t, p.Validate(cfg), ErrConfiguration)
		})
	}
}

// TestParamsTensorNames checks the state-dict naming
func TestParamsTensorNames(t *testing.T) {
	p := NewParams(Config{Channel: 2, VecLen: 8, NumberBlocks: 2})
	shapes := map[string][]int{}
	for _, ref := range p.tensorRefs() {
		shapes[ref.name] = ref.shape
	}

	assert.Equal(t, []int{2, 1, 3, 3}, shapes["FPConv.weight"])
	assert.Equal(t, []int{8, 4, 3, 3}, shapes["FConv.weight"])
	assert.Equal(t, []int{2, 1, 3, 3}, shapes["GPConv.DSBlock0.Conv.weight"])
	assert.Equal(t, []int{2}, shapes["VMConv.DSBlock0.Conv.bias"])
	assert.Equal(t, []int{4, 8}, shapes["FLinear.1.0.weight"])
	assert.Equal(t, []int{4}, shapes["GLinear.0.1.bias"])
	assert.Equal(t, []int{2, 2, 3, 3}, shapes["FineAdjust.weight"])
	assert.NotContains(t, shapes, "GMConv.DSBlock1.Conv.weight")
}
