package nn

// fineFeatures computes F on the guide grid:
// FConv(cat(FMConv(upsample4(spectral)), FPConv(guide))).
func fineFeatures(p *Params, guide, spectral *Tensor[float32]) (*Tensor[float32], error) {
	up, err := UpsampleNearest(spectral, 4)
	if err != nil {
		return nil, err
	}
	fm, err := Conv2D(up, &p.FMConv)
	if err != nil {
		return nil, err
	}
	fp, err := Conv2D(guide, &p.FPConv)
	if err != nil {
		return nil, err
	}
	return fuse(fm, fp, &p.FConv)
}

// coarseFeatures runs a spectral and a guide pyramid down to the coarse grid
// and fuses them. It serves both the G branch (VecLen outputs) and the
// V branch (Channel outputs).
func coarseFeatures(spectralChain, guideChain []Conv2DParams, head *Conv2DParams, guide, spectral *Tensor[float32]) (*Tensor[float32], error) {
	m, err := DownsampleChain(spectral, spectralChain)
	if err != nil {
		return nil, err
	}
	g, err := DownsampleChain(guide, guideChain)
	if err != nil {
		return nil, err
	}
	return fuse(m, g, head)
}

func fuse(spectralPart, guidePart *Tensor[float32], head *Conv2DParams) (*Tensor[float32], error) {
	cat, err := ConcatChannels(spectralPart, guidePart)
	if err != nil {
		return nil, err
	}
	return Conv2D(cat, head)
}
