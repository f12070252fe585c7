package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRearrangersAgree checks that both strategies produce identical layouts
func TestRearrangersAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	index, named := indexRearranger{}, tensorRearranger{}

	for _, dims := range [][4]int{
		{2, 3, 4, 5},
		{1, 4, 1, 3},
		{3, 1, 2, 1},
	} {
		a, b, c, d := dims[0], dims[1], dims[2], dims[3]
		data := randomTensor(rng, a, b, c, d).Data

		for _, step := range []struct {
			name string
			run  func(r rearranger) ([]float32, error)
		}{
			{"rowsFromMap", func(r rearranger) ([]float32, error) { return r.rowsFromMap(data, a, b, c, d) }},
			{"queriesByBand", func(r rearranger) ([]float32, error) { return r.queriesByBand(data, a, b, c, d) }},
			{"keysByBand", func(r rearranger) ([]float32, error) { return r.keysByBand(data, a, b, c, d) }},
			{"mergeBands", func(r rearranger) ([]float32, error) { return r.mergeBands(data, a, b, c, d) }},
			{"mapFromRows", func(r rearranger) ([]float32, error) { return r.mapFromRows(data, a, b, c, d) }},
		} {
			want, err := step.run(index)
			require.NoError(t, err)
			got, err := step.run(named)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s %v", step.name, dims)
		}
	}
}

// TestRowsFromMap spells out one small layout change
func TestRowsFromMap(t *testing.T) {
	// (B=1, D=2, H=1, W=3) -> 3 rows of 2
	x := []float32{1, 2, 3, 4, 5, 6}
	for _, r := range []rearranger{indexRearranger{}, tensorRearranger{}} {
		rows, err := r.rowsFromMap(x, 1, 2, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, rows)
		assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, x, "input must not be modified")
	}
}

// TestKeysByBand checks that keys come out transposed per band
func TestKeysByBand(t *testing.T) {
	// (B=1, K=2, C=2, L=2)
	p := []float32{
		1, 2, 3, 4, // k0: band0 [1 2], band1 [3 4]
		5, 6, 7, 8, // k1: band0 [5 6], band1 [7 8]
	}
	for _, r := range []rearranger{indexRearranger{}, tensorRearranger{}} {
		keys, err := r.keysByBand(p, 1, 2, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 5, 2, 6, 3, 7, 4, 8}, keys)
	}
}
