package nn

import (
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// maxRecordedWarnings bounds Result.Warnings; WarningCount keeps the total.
const maxRecordedWarnings = 32

// coupling is the probabilistic coupling engine: per band it scores every
// fine query against every coarse key, turns each query's scores into a
// distribution over the coarse grid and gathers the band's coarse values
// with it.
type coupling struct {
	layout  rearranger
	backend Backend
	workers int
	tol     float64
}

type couplingOutput struct {
	probability  []float32 // (B, Hf, Wf, C, OH, OW)
	aggregate    []float32 // (B, C, Hf, Wf)
	warnings     []NumericalWarning
	warningCount int
}

// run couples F (B, VecLen, Hf, Wf) and G (B, VecLen, OH, OW), projected by
// fProj and gProj, and gathers V (B, C, OH, OW).
func (e *coupling) run(fProj, gProj *bandProjector, f, g, v *Tensor[float32]) (*couplingOutput, error) {
	b, vecLen, hf, wf, _ := f.Dims4()
	_, _, oh, ow, _ := g.Dims4()
	c, l := fProj.bands, fProj.width
	n, k := hf*wf, oh*ow

	fRows, err := e.layout.rowsFromMap(f.Data, b, vecLen, hf, wf)
	if err != nil {
		return nil, err
	}
	gRows, err := e.layout.rowsFromMap(g.Data, b, vecLen, oh, ow)
	if err != nil {
		return nil, err
	}

	// (B, N, C, L) and (B, K, C, L)
	pvf := fProj.project(fRows, b*n)
	fvf := gProj.project(gRows, b*k)

	queries, err := e.layout.queriesByBand(pvf, b, n, c, l) // (C, B, N, L)
	if err != nil {
		return nil, err
	}
	keys, err := e.layout.keysByBand(fvf, b, k, c, l) // (C, B, L, K)
	if err != nil {
		return nil, err
	}

	// One batched product per (band, sample); every task owns its own block
	// of scores.
	scores := make([]float32, c*b*n*k)
	var grp errgroup.Group
	grp.SetLimit(e.workers)
	for task := 0; task < c*b; task++ {
		grp.Go(func() error {
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
				blas32.General{Rows: n, Cols: l, Stride: l, Data: queries[task*n*l : (task+1)*n*l]},
				blas32.General{Rows: l, Cols: k, Stride: k, Data: keys[task*l*k : (task+1)*l*k]},
				0,
				blas32.General{Rows: n, Cols: k, Stride: k, Data: scores[task*n*k : (task+1)*n*k]})
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	if err := e.backend.SoftmaxRows(scores, c*b*n, k, float32(math.Sqrt(float64(l)))); err != nil {
		return nil, err
	}

	out := &couplingOutput{}
	out.warnings, out.warningCount = checkRowSums(scores, c, b, n, k, e.tol)

	out.probability, err = e.layout.mergeBands(scores, c, b, n, k)
	if err != nil {
		return nil, err
	}

	agg, err := e.aggregate(out.probability, v.Data, b, n, c, k)
	if err != nil {
		return nil, err
	}
	out.aggregate, err = e.layout.mapFromRows(agg, b, hf, wf, c)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// aggregate computes out[b, n, c] = Σ_k P[b, n, c, k] · V[b, c, k], summing
// in ascending coarse order.
func (e *coupling) aggregate(prob, values []float32, b, n, c, k int) ([]float32, error) {
	out := make([]float32, b*n*c)
	var grp errgroup.Group
	grp.SetLimit(e.workers)
	for bi := 0; bi < b; bi++ {
		grp.Go(func() error {
			vb := values[bi*c*k : (bi+1)*c*k]
			for ni := 0; ni < n; ni++ {
				row := (bi*n + ni) * c
				for ci := 0; ci < c; ci++ {
					p := prob[(row+ci)*k : (row+ci+1)*k]
					vc := vb[ci*k : (ci+1)*k]
					var sum float32
					for ki, pv := range p {
						sum += pv * vc[ki]
					}
					out[row+ci] = sum
				}
			}
			return nil
		})
	}
	return out, grp.Wait()
}

// checkRowSums flags probability rows (laid out (C, B, N, K)) whose sum is
// not finite or deviates from 1 by more than tol.
func checkRowSums(prob []float32, c, b, n, k int, tol float64) ([]NumericalWarning, int) {
	var warnings []NumericalWarning
	count := 0
	for row := 0; row < c*b*n; row++ {
		sum := 0.0
		for _, p := range prob[row*k : (row+1)*k] {
			sum += float64(p)
		}
		if !math.IsNaN(sum) && !math.IsInf(sum, 0) && math.Abs(sum-1) <= tol {
			continue
		}
		count++
		if len(warnings) < maxRecordedWarnings {
			warnings = append(warnings, NumericalWarning{
				Band:  row / (b * n),
				Batch: (row / n) % b,
				Row:   row % n,
				Sum:   sum,
			})
		}
	}
	return warnings, count
}
