package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2D applies a zero-padded 2D convolution to an NCHW batch.
// input shape: [batch][inChannels][height][width]
// output shape: [batch][outChannels][outHeight][outWidth]
//
// Each sample is unfolded with im2col into a [in*k*k][outH*outW] matrix and
// multiplied by the [out][in*k*k] kernel in a single GEMM.
func Conv2D(input *Tensor[float32], p *Conv2DParams) (*Tensor[float32], error) {
	n, c, h, w, ok := input.Dims4()
	if !ok {
		return nil, shapeErrorf("conv2d: want NCHW input, got shape %v", input.Shape)
	}
	if c != p.InChannels {
		return nil, shapeErrorf("conv2d: input has %d channels, kernel expects %d", c, p.InChannels)
	}
	outH, outW := p.OutputSize(h, w)
	if outH <= 0 || outW <= 0 {
		return nil, shapeErrorf("conv2d: %dx%d input too small for kernel %d stride %d", h, w, p.KernelSize, p.Stride)
	}

	k := p.KernelSize
	rows := c * k * k
	spatial := outH * outW
	out := NewTensor[float32](n, p.OutChannels, outH, outW)
	col := make([]float32, rows*spatial)

	kernel := blas32.General{Rows: p.OutChannels, Cols: rows, Stride: rows, Data: p.Kernel}
	cols := blas32.General{Rows: rows, Cols: spatial, Stride: spatial, Data: col}

	for b := 0; b < n; b++ {
		src := input.Data[b*c*h*w : (b+1)*c*h*w]
		im2col(src, c, h, w, k, p.Stride, p.Padding, outH, outW, col)

		dst := out.Data[b*p.OutChannels*spatial : (b+1)*p.OutChannels*spatial]
		for f := 0; f < p.OutChannels; f++ {
			bias := p.Bias[f]
			plane := dst[f*spatial : (f+1)*spatial]
			for i := range plane {
				plane[i] = bias
			}
		}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, kernel, cols, 1,
			blas32.General{Rows: p.OutChannels, Cols: spatial, Stride: spatial, Data: dst})
	}
	return out, nil
}

// im2col unfolds one CHW sample. Row index is ic*k*k + kh*k + kw, matching
// the kernel layout; column index is oh*outW + ow. Out-of-bounds taps are 0.
func im2col(src []float32, c, h, w, k, stride, padding, outH, outW int, col []float32) {
	spatial := outH * outW
	for ic := 0; ic < c; ic++ {
		plane := src[ic*h*w : (ic+1)*h*w]
		for kh := 0; kh < k; kh++ {
			for kw := 0; kw < k; kw++ {
				row := col[((ic*k+kh)*k+kw)*spatial:]
				for oh := 0; oh < outH; oh++ {
					ih := oh*stride + kh - padding
					for ow := 0; ow < outW; ow++ {
						iw := ow*stride + kw - padding
						if ih >= 0 && ih < h && iw >= 0 && iw < w {
							row[oh*outW+ow] = plane[ih*w+iw]
						} else {
							row[oh*outW+ow] = 0
						}
					}
				}
			}
		}
	}
}
