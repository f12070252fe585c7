// Package nn implements the PGCU fusion unit for pansharpening on the CPU.
//
// PGCU couples a high-resolution single-channel guide image (panchromatic)
// with a low-resolution multi-band spectral image (multispectral) and
// produces a multi-band image on the guide grid:
//
//   - F branch: guide features and the ×4 upsampled spectral image are fused
//     into VecLen-wide vectors at guide resolution
//   - G branch: downsampling pyramids of both inputs are fused into VecLen-wide
//     vectors on a coarse grid
//   - V branch: the same pyramids are fused into one value per band on the
//     coarse grid
//   - every band projects F and G to VecLen/Channel-wide vectors, scores every
//     fine location against every coarse location and turns the scores into a
//     softmax distribution
//   - each band's coarse values are gathered with that distribution and a
//     final 3x3 convolution adjusts the result
//
// All tensors are NCHW float32 buffers. The parameter bundle is owned by the
// caller and never modified by the unit.
//
// Example usage:
//
//	cfg := nn.DefaultConfig()
//	params := nn.InitParams(cfg, rand.New(rand.NewSource(1)))
//	unit, err := nn.New(cfg, params)
//	if err != nil {
//		return err
//	}
//
//	// guide: (B, 1, 4H, 4W), spectral: (B, 4, H, W)
//	out, err := unit.Forward(guide, spectral)
package nn
