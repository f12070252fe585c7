package nn

import "math"

// entropyFloor keeps log2 finite for zero probabilities.
const entropyFloor = 1e-9

// InformationEntropy summarises how spread each fine location's
// distributions are: H[b, h, w] = -Σ_{c,k} P·log2(P + 1e-9) / C.
// prob has the BandsProbability layout (B, Hf, Wf, C, OH, OW); the result
// is (B, Hf, Wf). It is a diagnostic and plays no part in the output.
func InformationEntropy(prob *Tensor[float32]) (*Tensor[float32], error) {
	if len(prob.Shape) != 6 {
		return nil, shapeErrorf("entropy: want (B, H, W, C, OH, OW), got %v", prob.Shape)
	}
	b, hf, wf, c := prob.Shape[0], prob.Shape[1], prob.Shape[2], prob.Shape[3]
	group := c * prob.Shape[4] * prob.Shape[5]

	out := NewTensor[float32](b, hf, wf)
	for i := range out.Data {
		var h float64
		for _, p := range prob.Data[i*group : (i+1)*group] {
			h -= float64(p) * math.Log2(float64(p)+entropyFloor)
		}
		out.Data[i] = float32(h / float64(c))
	}
	return out, nil
}
