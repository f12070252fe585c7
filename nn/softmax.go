package nn

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Backend computes the probability rows of the coupling engine.
type Backend interface {
	// SoftmaxRows divides every element of scores by temperature and
	// replaces each row of width cols with its softmax, in place.
	SoftmaxRows(scores []float32, rows, cols int, temperature float32) error
}

// CPUBackend runs the row softmax on goroutines. Rows are independent, so
// the result does not depend on Workers.
type CPUBackend struct {
	Workers int // 0 = GOMAXPROCS
}

// minRowsPerTask keeps tiny inputs on a single goroutine.
const minRowsPerTask = 256

func (b CPUBackend) SoftmaxRows(scores []float32, rows, cols int, temperature float32) error {
	if rows == 0 || cols == 0 {
		return nil
	}
	if len(scores) < rows*cols {
		return shapeErrorf("softmax: %d scores cannot hold %d rows of %d", len(scores), rows, cols)
	}

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (rows + workers - 1) / workers
	if chunk < minRowsPerTask {
		chunk = minRowsPerTask
	}

	var g errgroup.Group
	for start := 0; start < rows; start += chunk {
		end := min(start+chunk, rows)
		g.Go(func() error {
			exps := make([]float64, cols)
			for r := start; r < end; r++ {
				softmaxRow(scores[r*cols:(r+1)*cols], temperature, exps)
			}
			return nil
		})
	}
	return g.Wait()
}

// softmaxRow applies temperature-scaled softmax in place. The row maximum is
// subtracted before exponentiation so large scores stay finite.
func softmaxRow(row []float32, temperature float32, exps []float64) {
	if temperature == 0 {
		temperature = 1.0
	}

	// Scale by temperature
	maxLogit := row[0] / temperature
	for i, v := range row {
		row[i] = v / temperature
		if row[i] > maxLogit {
			maxLogit = row[i]
		}
	}

	sum := 0.0
	for i, v := range row {
		exps[i] = math.Exp(float64(v - maxLogit))
		sum += exps[i]
	}

	// Normalize
	for i := range row {
		row[i] = float32(exps[i] / sum)
	}
}
