package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// bandProjector applies every band's Linear+LayerNorm with one GEMM: the
// per-band [L][VecLen] weights are stacked into a [C·L][VecLen] matrix, so
// band i of a projected row occupies columns [i·L, (i+1)·L).
type bandProjector struct {
	bands  int
	width  int // BandVecLen
	in     int // VecLen
	weight []float32
	bias   []float32
	gamma  [][]float32
	beta   [][]float32
}

func newBandProjector(bands []BandProjection, vecLen, bandVecLen int) *bandProjector {
	p := &bandProjector{
		bands:  len(bands),
		width:  bandVecLen,
		in:     vecLen,
		weight: make([]float32, 0, len(bands)*bandVecLen*vecLen),
		bias:   make([]float32, 0, len(bands)*bandVecLen),
	}
	for _, b := range bands {
		p.weight = append(p.weight, b.Weight...)
		p.bias = append(p.bias, b.Bias...)
		p.gamma = append(p.gamma, append([]float32(nil), b.Gamma...))
		p.beta = append(p.beta, append([]float32(nil), b.Beta...))
	}
	return p
}

// project maps rows×VecLen vectors to rows×(C·L) band vectors.
func (p *bandProjector) project(x []float32, rows int) []float32 {
	outCols := p.bands * p.width
	out := make([]float32, rows*outCols)
	for r := 0; r < rows; r++ {
		copy(out[r*outCols:(r+1)*outCols], p.bias)
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: rows, Cols: p.in, Stride: p.in, Data: x},
		blas32.General{Rows: outCols, Cols: p.in, Stride: p.in, Data: p.weight},
		1,
		blas32.General{Rows: rows, Cols: outCols, Stride: outCols, Data: out})

	LayerNormGroups(out, p.width, p.gamma, p.beta, DefaultLayerNormEpsilon)
	return out
}
