package nn

import "math"

// MaxPool2D takes the maximum over size×size windows with stride size.
// Trailing rows and columns that do not fill a window are dropped.
func MaxPool2D(input *Tensor[float32], size int) (*Tensor[float32], error) {
	n, c, h, w, ok := input.Dims4()
	if !ok {
		return nil, shapeErrorf("maxpool2d: want NCHW input, got shape %v", input.Shape)
	}
	if size <= 0 {
		return nil, shapeErrorf("maxpool2d: invalid window %d", size)
	}
	outH, outW := h/size, w/size
	if outH == 0 || outW == 0 {
		return nil, shapeErrorf("maxpool2d: %dx%d input too small for window %d", h, w, size)
	}

	out := NewTensor[float32](n, c, outH, outW)
	for p := 0; p < n*c; p++ {
		src := input.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*outH*outW : (p+1)*outH*outW]
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				m := float32(math.Inf(-1))
				for kh := 0; kh < size; kh++ {
					row := src[(oh*size+kh)*w:]
					for kw := 0; kw < size; kw++ {
						if v := row[ow*size+kw]; v > m {
							m = v
						}
					}
				}
				dst[oh*outW+ow] = m
			}
		}
	}
	return out, nil
}

// UpsampleNearest repeats every pixel factor times along both spatial axes.
func UpsampleNearest(input *Tensor[float32], factor int) (*Tensor[float32], error) {
	n, c, h, w, ok := input.Dims4()
	if !ok {
		return nil, shapeErrorf("upsample: want NCHW input, got shape %v", input.Shape)
	}
	if factor < 1 {
		return nil, shapeErrorf("upsample: invalid factor %d", factor)
	}

	outH, outW := h*factor, w*factor
	out := NewTensor[float32](n, c, outH, outW)
	for p := 0; p < n*c; p++ {
		src := input.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*outH*outW : (p+1)*outH*outW]
		for oh := 0; oh < outH; oh++ {
			row := src[(oh/factor)*w:]
			for ow := 0; ow < outW; ow++ {
				dst[oh*outW+ow] = row[ow/factor]
			}
		}
	}
	return out, nil
}

// ConcatChannels stacks a and b along the channel axis.
func ConcatChannels(a, b *Tensor[float32]) (*Tensor[float32], error) {
	an, ac, ah, aw, ok := a.Dims4()
	if !ok {
		return nil, shapeErrorf("concat: want NCHW input, got shape %v", a.Shape)
	}
	bn, bc, bh, bw, ok := b.Dims4()
	if !ok {
		return nil, shapeErrorf("concat: want NCHW input, got shape %v", b.Shape)
	}
	if an != bn || ah != bh || aw != bw {
		return nil, shapeErrorf("concat: shapes %v and %v differ outside the channel axis", a.Shape, b.Shape)
	}

	plane := ah * aw
	out := NewTensor[float32](an, ac+bc, ah, aw)
	for i := 0; i < an; i++ {
		dst := out.Data[i*(ac+bc)*plane:]
		copy(dst[:ac*plane], a.Data[i*ac*plane:(i+1)*ac*plane])
		copy(dst[ac*plane:(ac+bc)*plane], b.Data[i*bc*plane:(i+1)*bc*plane])
	}
	return out, nil
}
