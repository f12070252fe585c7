package nn

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
)

// rearranger moves data between the layouts used by the coupling engine.
// Implementations only copy elements, so every strategy yields the same bits.
type rearranger interface {
	// (B, D, H, W) -> (B·H·W, D)
	rowsFromMap(x []float32, b, d, h, w int) ([]float32, error)
	// (B, N, C, L) -> (C, B, N, L)
	queriesByBand(p []float32, b, n, c, l int) ([]float32, error)
	// (B, K, C, L) -> (C, B, L, K)
	keysByBand(p []float32, b, k, c, l int) ([]float32, error)
	// (C, B, N, K) -> (B, N, C, K)
	mergeBands(p []float32, c, b, n, k int) ([]float32, error)
	// (B, H, W, C) -> (B, C, H, W)
	mapFromRows(x []float32, b, h, w, c int) ([]float32, error)
}

func newRearranger(s Strategy) rearranger {
	if s == StrategyRearrange {
		return tensorRearranger{}
	}
	return indexRearranger{}
}

// indexRearranger spells out each transpose + reshape as index arithmetic.
type indexRearranger struct{}

func (indexRearranger) rowsFromMap(x []float32, b, d, h, w int) ([]float32, error) {
	out := make([]float32, len(x))
	for bi := 0; bi < b; bi++ {
		for di := 0; di < d; di++ {
			for hi := 0; hi < h; hi++ {
				for wi := 0; wi < w; wi++ {
					// Source: x[b, d, h, w]
					srcIdx := ((bi*d+di)*h+hi)*w + wi
					// Dest: rows[(b, h, w), d]
					dstIdx := ((bi*h+hi)*w+wi)*d + di
					out[dstIdx] = x[srcIdx]
				}
			}
		}
	}
	return out, nil
}

func (indexRearranger) queriesByBand(p []float32, b, n, c, l int) ([]float32, error) {
	out := make([]float32, len(p))
	for bi := 0; bi < b; bi++ {
		for ni := 0; ni < n; ni++ {
			for ci := 0; ci < c; ci++ {
				src := p[((bi*n+ni)*c+ci)*l:]
				dst := out[((ci*b+bi)*n+ni)*l:]
				copy(dst[:l], src[:l])
			}
		}
	}
	return out, nil
}

func (indexRearranger) keysByBand(p []float32, b, k, c, l int) ([]float32, error) {
	out := make([]float32, len(p))
	for bi := 0; bi < b; bi++ {
		for ki := 0; ki < k; ki++ {
			for ci := 0; ci < c; ci++ {
				for li := 0; li < l; li++ {
					srcIdx := ((bi*k+ki)*c+ci)*l + li
					dstIdx := ((ci*b+bi)*l+li)*k + ki
					out[dstIdx] = p[srcIdx]
				}
			}
		}
	}
	return out, nil
}

func (indexRearranger) mergeBands(p []float32, c, b, n, k int) ([]float32, error) {
	out := make([]float32, len(p))
	for ci := 0; ci < c; ci++ {
		for bi := 0; bi < b; bi++ {
			for ni := 0; ni < n; ni++ {
				src := p[((ci*b+bi)*n+ni)*k:]
				dst := out[((bi*n+ni)*c+ci)*k:]
				copy(dst[:k], src[:k])
			}
		}
	}
	return out, nil
}

func (indexRearranger) mapFromRows(x []float32, b, h, w, c int) ([]float32, error) {
	out := make([]float32, len(x))
	for bi := 0; bi < b; bi++ {
		for hi := 0; hi < h; hi++ {
			for wi := 0; wi < w; wi++ {
				for ci := 0; ci < c; ci++ {
					srcIdx := ((bi*h+hi)*w+wi)*c + ci
					dstIdx := ((bi*c+ci)*h+hi)*w + wi
					out[dstIdx] = x[srcIdx]
				}
			}
		}
	}
	return out, nil
}

// tensorRearranger expresses each step as a named axis permutation on a
// dense tensor.
type tensorRearranger struct{}

func (tensorRearranger) rowsFromMap(x []float32, b, d, h, w int) ([]float32, error) {
	// b d h w -> (b h w) d
	return permute(x, []int{b, d, h, w}, 0, 2, 3, 1)
}

func (tensorRearranger) queriesByBand(p []float32, b, n, c, l int) ([]float32, error) {
	// b n c l -> c b n l
	return permute(p, []int{b, n, c, l}, 2, 0, 1, 3)
}

func (tensorRearranger) keysByBand(p []float32, b, k, c, l int) ([]float32, error) {
	// b k c l -> c b l k
	return permute(p, []int{b, k, c, l}, 2, 0, 3, 1)
}

func (tensorRearranger) mergeBands(p []float32, c, b, n, k int) ([]float32, error) {
	// c b n k -> b n c k
	return permute(p, []int{c, b, n, k}, 1, 2, 0, 3)
}

func (tensorRearranger) mapFromRows(x []float32, b, h, w, c int) ([]float32, error) {
	// b h w c -> b c h w
	return permute(x, []int{b, h, w, c}, 0, 3, 1, 2)
}

// permute returns a row-major copy of data with its axes reordered.
// The input slice is left untouched.
func permute(data []float32, shape []int, axes ...int) ([]float32, error) {
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(slices.Clone(data)))
	if err := t.T(axes...); err != nil {
		return nil, fmt.Errorf("permute %v by %v: %w", shape, axes, err)
	}
	if err := t.Transpose(); err != nil {
		return nil, fmt.Errorf("permute %v by %v: %w", shape, axes, err)
	}
	out, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("permute: unexpected backing %T", t.Data())
	}
	return out, nil
}
