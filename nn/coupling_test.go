package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveProject applies one band's Linear then LayerNorm to the feature vector
// at position pos of sample bi in x (B, VecLen, H, W).
func naiveProject(bp BandProjection, x *Tensor[float32], bi, pos int) []float64 {
	_, vecLen, h, w, _ := x.Dims4()
	hw := h * w
	l := len(bp.Bias)

	out := make([]float64, l)
	for o := 0; o < l; o++ {
		sum := float64(bp.Bias[o])
		for i := 0; i < vecLen; i++ {
			sum += float64(bp.Weight[o*vecLen+i]) * float64(x.Data[(bi*vecLen+i)*hw+pos])
		}
		out[o] = sum
	}

	mean := 0.0
	for _, v := range out {
		mean += v
	}
	mean /= float64(l)
	variance := 0.0
	for _, v := range out {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(l)
	for o := range out {
		out[o] = (out[o]-mean)/math.Sqrt(variance+DefaultLayerNormEpsilon)*float64(bp.Gamma[o]) + float64(bp.Beta[o])
	}
	return out
}

// naiveCoupling scores, normalises and aggregates one band and one sample at
// a time. prob is laid out (B, N, C, K), agg (B, C, N).
func naiveCoupling(p *Params, f, g, v *Tensor[float32]) (prob, agg []float64) {
	b, _, hf, wf, _ := f.Dims4()
	_, c, oh, ow, _ := v.Dims4()
	n, k := hf*wf, oh*ow
	prob = make([]float64, b*n*c*k)
	agg = make([]float64, b*c*n)

	for ci := 0; ci < c; ci++ {
		for bi := 0; bi < b; bi++ {
			keys := make([][]float64, k)
			for ki := range keys {
				keys[ki] = naiveProject(p.GLinear[ci], g, bi, ki)
			}
			for ni := 0; ni < n; ni++ {
				q := naiveProject(p.FLinear[ci], f, bi, ni)
				scale := math.Sqrt(float64(len(q)))

				exps := make([]float64, k)
				total := 0.0
				for ki, key := range keys {
					dot := 0.0
					for li := range q {
						dot += q[li] * key[li]
					}
					exps[ki] = math.Exp(dot / scale)
					total += exps[ki]
				}

				row := ((bi*n+ni)*c + ci) * k
				sum := 0.0
				for ki := range exps {
					prob[row+ki] = exps[ki] / total
					sum += prob[row+ki] * float64(v.Data[(bi*c+ci)*k+ki])
				}
				agg[(bi*c+ci)*n+ni] = sum
			}
		}
	}
	return prob, agg
}

// TestCouplingMatchesNaiveLoop compares probabilities, the aggregate and the
// adjusted output with a straightforward per-band computation
func TestCouplingMatchesNaiveLoop(t *testing.T) {
	cfg := Config{Channel: 3, VecLen: 24, NumberBlocks: 2}
	rng := rand.New(rand.NewSource(31))
	params := InitParams(cfg, rng)
	// Wider gammas sharpen the distributions away from uniform
	for _, bands := range [][]BandProjection{params.FLinear, params.GLinear} {
		for i := range bands {
			for j := range bands[i].Gamma {
				bands[i].Gamma[j] = float32(1 + 1.5*rng.Float64())
			}
		}
	}
	// spectral 8x12, coarse grid 2x3
	guide, spectral := newTestInputs(32, 2, cfg.Channel, 8, 12)

	for _, strategy := range []Strategy{StrategyIndex, StrategyRearrange} {
		t.Run(strategy.String(), func(t *testing.T) {
			c := cfg
			c.Strategy = strategy
			unit, err := New(c, params)
			require.NoError(t, err)

			f, err := fineFeatures(params, guide, spectral)
			require.NoError(t, err)
			g, err := coarseFeatures(params.GMConv, params.GPConv, &params.GConv, guide, spectral)
			require.NoError(t, err)
			v, err := coarseFeatures(params.VMConv, params.VPConv, &params.VConv, guide, spectral)
			require.NoError(t, err)
			require.Equal(t, []int{2, 3, 2, 3}, v.Shape)

			wantProb, wantAgg := naiveCoupling(params, f, g, v)

			l := cfg.BandVecLen()
			coupled, err := unit.engine.run(
				newBandProjector(params.FLinear, cfg.VecLen, l),
				newBandProjector(params.GLinear, cfg.VecLen, l),
				f, g, v)
			require.NoError(t, err)
			require.Len(t, coupled.aggregate, len(wantAgg))
			for i, want := range wantAgg {
				require.InDelta(t, want, coupled.aggregate[i], 1e-4, "aggregate %d", i)
			}

			res, err := unit.ForwardDetailed(guide, spectral)
			require.NoError(t, err)
			require.Len(t, res.Probability.Data, len(wantProb))
			peak := 0.0
			for i, want := range wantProb {
				require.InDelta(t, want, res.Probability.Data[i], 1e-4, "probability %d", i)
				peak = max(peak, want)
			}
			assert.Greater(t, peak, 2.0/6, "distributions should not be uniform")

			aggTensor := NewTensor[float32](2, cfg.Channel, 32, 48)
			for i, want := range wantAgg {
				aggTensor.Data[i] = float32(want)
			}
			wantOut, err := Conv2D(aggTensor, &params.FineAdjust)
			require.NoError(t, err)
			assert.InDeltaSlice(t, wantOut.Data, res.Output.Data, 1e-3)
		})
	}
}
