package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// Conv2DParams holds one convolution's weights.
// Kernel layout is [out][in][k][k], Bias is [out].
type Conv2DParams struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	Kernel      []float32
	Bias        []float32
}

// NewConv2DParams allocates zeroed weights for a convolution.
func NewConv2DParams(in, out, kernelSize, stride, padding int) Conv2DParams {
	return Conv2DParams{
		InChannels:  in,
		OutChannels: out,
		KernelSize:  kernelSize,
		Stride:      stride,
		Padding:     padding,
		Kernel:      make([]float32, out*in*kernelSize*kernelSize),
		Bias:        make([]float32, out),
	}
}

// OutputSize returns the spatial size produced for an h×w input.
func (p *Conv2DParams) OutputSize(h, w int) (int, int) {
	outH := (h+2*p.Padding-p.KernelSize)/p.Stride + 1
	outW := (w+2*p.Padding-p.KernelSize)/p.Stride + 1
	return outH, outW
}

// NumParams counts kernel and bias entries.
func (p *Conv2DParams) NumParams() int {
	return len(p.Kernel) + len(p.Bias)
}

func (p *Conv2DParams) check(name string, in, out, kernelSize, stride, padding int) error {
	if p.InChannels != in || p.OutChannels != out || p.KernelSize != kernelSize || p.Stride != stride || p.Padding != padding {
		return configErrorf("%s: want conv %d->%d k%d s%d p%d, got %d->%d k%d s%d p%d",
			name, in, out, kernelSize, stride, padding,
			p.InChannels, p.OutChannels, p.KernelSize, p.Stride, p.Padding)
	}
	if len(p.Kernel) != out*in*kernelSize*kernelSize {
		return configErrorf("%s: kernel has %d weights, want %d", name, len(p.Kernel), out*in*kernelSize*kernelSize)
	}
	if len(p.Bias) != out {
		return configErrorf("%s: bias has %d entries, want %d", name, len(p.Bias), out)
	}
	return nil
}

// BandProjection is one band's Linear(VecLen, BandVecLen) followed by a
// LayerNorm(BandVecLen). Weight layout is [BandVecLen][VecLen].
type BandProjection struct {
	Weight []float32
	Bias   []float32
	Gamma  []float32
	Beta   []float32
}

func newBandProjection(vecLen, bandVecLen int) BandProjection {
	gamma := make([]float32, bandVecLen)
	for i := range gamma {
		gamma[i] = 1
	}
	return BandProjection{
		Weight: make([]float32, bandVecLen*vecLen),
		Bias:   make([]float32, bandVecLen),
		Gamma:  gamma,
		Beta:   make([]float32, bandVecLen),
	}
}

func (b *BandProjection) check(name string, vecLen, bandVecLen int) error {
	if len(b.Weight) != bandVecLen*vecLen {
		return configErrorf("%s: weight has %d entries, want %d", name, len(b.Weight), bandVecLen*vecLen)
	}
	for _, v := range []struct {
		field string
		n     int
	}{{"bias", len(b.Bias)}, {"gamma", len(b.Gamma)}, {"beta", len(b.Beta)}} {
		if v.n != bandVecLen {
			return configErrorf("%s: %s has %d entries, want %d", name, v.field, v.n, bandVecLen)
		}
	}
	return nil
}

// Params is the full learned parameter bundle of a PGCU unit. FLinear and
// GLinear hold exactly Channel entries, one per band.
type Params struct {
	FPConv Conv2DParams
	FMConv Conv2DParams
	FConv  Conv2DParams

	GPConv []Conv2DParams
	GMConv []Conv2DParams
	GConv  Conv2DParams

	VPConv []Conv2DParams
	VMConv []Conv2DParams
	VConv  Conv2DParams

	FLinear []BandProjection
	GLinear []BandProjection

	FineAdjust Conv2DParams
}

// NewParams allocates a correctly shaped bundle with zero weights and unit
// LayerNorm scales. The configuration must be valid.
func NewParams(cfg Config) *Params {
	c, vec, nb := cfg.Channel, cfg.VecLen, cfg.NumberBlocks
	p := &Params{
		FPConv:     NewConv2DParams(1, c, 3, 1, 1),
		FMConv:     NewConv2DParams(c, c, 3, 1, 1),
		FConv:      NewConv2DParams(2*c, vec, 3, 1, 1),
		GPConv:     newPyramid(1, c, nb),
		GMConv:     newPyramid(c, c, nb-1),
		GConv:      NewConv2DParams(2*c, vec, 3, 1, 1),
		VPConv:     newPyramid(1, c, nb),
		VMConv:     newPyramid(c, c, nb-1),
		VConv:      NewConv2DParams(2*c, c, 3, 1, 1),
		FineAdjust: NewConv2DParams(c, c, 3, 1, 1),
	}
	for i := 0; i < c; i++ {
		p.FLinear = append(p.FLinear, newBandProjection(vec, cfg.BandVecLen()))
		p.GLinear = append(p.GLinear, newBandProjection(vec, cfg.BandVecLen()))
	}
	return p
}

func newPyramid(in, out, blocks int) []Conv2DParams {
	chain := make([]Conv2DParams, 0, blocks)
	for i := 0; i < blocks; i++ {
		chain = append(chain, newDownsampleParams(in, out))
		in = out
	}
	return chain
}

// InitParams draws weights the way PyTorch initialises Conv2d, Linear and
// LayerNorm: weights and biases uniform in ±1/sqrt(fan_in), gamma 1, beta 0.
func InitParams(cfg Config, rng *rand.Rand) *Params {
	p := NewParams(cfg)
	for _, ref := range p.convRefs() {
		conv := ref.conv
		bound := 1 / math.Sqrt(float64(conv.InChannels*conv.KernelSize*conv.KernelSize))
		fillUniform(rng, conv.Kernel, bound)
		fillUniform(rng, conv.Bias, bound)
	}
	bound := 1 / math.Sqrt(float64(cfg.VecLen))
	for _, bands := range [][]BandProjection{p.FLinear, p.GLinear} {
		for i := range bands {
			fillUniform(rng, bands[i].Weight, bound)
			fillUniform(rng, bands[i].Bias, bound)
		}
	}
	return p
}

func fillUniform(rng *rand.Rand, dst []float32, bound float64) {
	for i := range dst {
		dst[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// IdentityParams returns deterministic identity-like weights: every
// convolution averages its input channels at the kernel centre, every band
// projection selects its own slice of the feature vector, biases are zero.
// A constant input therefore flows through the unit unchanged.
func IdentityParams(cfg Config) *Params {
	p := NewParams(cfg)
	for _, ref := range p.convRefs() {
		conv := ref.conv
		k := conv.KernelSize
		centre := (k/2)*k + k/2
		w := 1 / float32(conv.InChannels)
		for o := 0; o < conv.OutChannels; o++ {
			for i := 0; i < conv.InChannels; i++ {
				conv.Kernel[(o*conv.InChannels+i)*k*k+centre] = w
			}
		}
	}
	l := cfg.BandVecLen()
	for _, bands := range [][]BandProjection{p.FLinear, p.GLinear} {
		for band := range bands {
			for o := 0; o < l; o++ {
				bands[band].Weight[o*cfg.VecLen+band*l+o] = 1
			}
		}
	}
	return p
}

// Validate checks every tensor of the bundle against cfg.
func (p *Params) Validate(cfg Config) error {
	if p == nil {
		return configErrorf("nil parameter bundle")
	}
	want := NewParams(cfg)
	got := p.convRefs()
	expected := want.convRefs()
	if len(got) != len(expected) {
		return configErrorf("parameter bundle has %d convolutions, want %d (pyramid depth %d)",
			len(got), len(expected), cfg.NumberBlocks)
	}
	for i, ref := range got {
		e := expected[i].conv
		if ref.name != expected[i].name {
			return configErrorf("convolution %d is %s, want %s", i, ref.name, expected[i].name)
		}
		if err := ref.conv.check(ref.name, e.InChannels, e.OutChannels, e.KernelSize, e.Stride, e.Padding); err != nil {
			return err
		}
	}
	for _, set := range []struct {
		name  string
		bands []BandProjection
	}{{"FLinear", p.FLinear}, {"GLinear", p.GLinear}} {
		if len(set.bands) != cfg.Channel {
			return configErrorf("%s has %d band projections, want %d", set.name, len(set.bands), cfg.Channel)
		}
		for i := range set.bands {
			if err := set.bands[i].check(fmt.Sprintf("%s.%d", set.name, i), cfg.VecLen, cfg.BandVecLen()); err != nil {
				return err
			}
		}
	}
	return nil
}

// NumParams counts every learned scalar in the bundle.
func (p *Params) NumParams() int {
	total := 0
	for _, ref := range p.tensorRefs() {
		total += len(*ref.data)
	}
	return total
}

type convRef struct {
	name string // PyTorch module path
	conv *Conv2DParams
}

// convRefs lists the convolutions in state-dict order.
func (p *Params) convRefs() []convRef {
	refs := []convRef{
		{"FPConv", &p.FPConv},
		{"FMConv", &p.FMConv},
		{"FConv", &p.FConv},
	}
	refs = appendPyramidRefs(refs, "GPConv", p.GPConv)
	refs = appendPyramidRefs(refs, "GMConv", p.GMConv)
	refs = append(refs, convRef{"GConv", &p.GConv})
	refs = appendPyramidRefs(refs, "VPConv", p.VPConv)
	refs = appendPyramidRefs(refs, "VMConv", p.VMConv)
	refs = append(refs, convRef{"VConv", &p.VConv})
	refs = append(refs, convRef{"FineAdjust", &p.FineAdjust})
	return refs
}

func appendPyramidRefs(refs []convRef, prefix string, chain []Conv2DParams) []convRef {
	for i := range chain {
		refs = append(refs, convRef{fmt.Sprintf("%s.DSBlock%d.Conv", prefix, i), &chain[i]})
	}
	return refs
}

type tensorRef struct {
	name  string
	shape []int
	data  *[]float32
}

// tensorRefs lists every parameter tensor with its state-dict name and shape.
func (p *Params) tensorRefs() []tensorRef {
	var refs []tensorRef
	for _, c := range p.convRefs() {
		k := c.conv.KernelSize
		refs = append(refs,
			tensorRef{c.name + ".weight", []int{c.conv.OutChannels, c.conv.InChannels, k, k}, &c.conv.Kernel},
			tensorRef{c.name + ".bias", []int{c.conv.OutChannels}, &c.conv.Bias},
		)
	}
	for _, set := range []struct {
		name  string
		bands []BandProjection
	}{{"FLinear", p.FLinear}, {"GLinear", p.GLinear}} {
		for i := range set.bands {
			b := &set.bands[i]
			out := len(b.Bias)
			in := 0
			if out > 0 {
				in = len(b.Weight) / out
			}
			prefix := fmt.Sprintf("%s.%d", set.name, i)
			refs = append(refs,
				tensorRef{prefix + ".0.weight", []int{out, in}, &b.Weight},
				tensorRef{prefix + ".0.bias", []int{out}, &b.Bias},
				tensorRef{prefix + ".1.weight", []int{out}, &b.Gamma},
				tensorRef{prefix + ".1.bias", []int{out}, &b.Beta},
			)
		}
	}
	return refs
}
