package nn

import (
	"math"
)

// DefaultLayerNormEpsilon matches torch.nn.LayerNorm.
const DefaultLayerNormEpsilon = 1e-5

// LayerNormGroups normalises data in place as consecutive groups of width
// elements: zero mean, unit (biased) variance, then the learned scale and
// shift. Group g uses gamma[g%len(gamma)] and beta[g%len(beta)], so a row
// holding one segment per band is normalised with each band's own affine.
func LayerNormGroups(data []float32, width int, gamma, beta [][]float32, epsilon float64) {
	if epsilon == 0 {
		epsilon = DefaultLayerNormEpsilon
	}
	groups := len(data) / width

	for g := 0; g < groups; g++ {
		seg := data[g*width : (g+1)*width]

		// Calculate mean
		var sum float64
		for _, v := range seg {
			sum += float64(v)
		}
		mean := sum / float64(width)

		// Calculate variance
		var variance float64
		for _, v := range seg {
			diff := float64(v) - mean
			variance += diff * diff
		}
		variance /= float64(width)

		std := math.Sqrt(variance + epsilon)

		var scale, shift []float32
		if len(gamma) > 0 {
			scale = gamma[g%len(gamma)]
		}
		if len(beta) > 0 {
			shift = beta[g%len(beta)]
		}

		for i, v := range seg {
			normalized := (float64(v) - mean) / std
			if scale != nil {
				normalized *= float64(scale[i])
			}
			if shift != nil {
				normalized += float64(shift[i])
			}
			seg[i] = float32(normalized)
		}
	}
}
