package nn

// newDownsampleParams shapes the convolution of one downsampling block:
// 3x3, stride 2, padding 1.
func newDownsampleParams(in, out int) Conv2DParams {
	return NewConv2DParams(in, out, 3, 2, 1)
}

// Downsample runs one block: strided convolution then 2x2 max pooling,
// shrinking each spatial axis by 4.
func Downsample(input *Tensor[float32], p *Conv2DParams) (*Tensor[float32], error) {
	x, err := Conv2D(input, p)
	if err != nil {
		return nil, err
	}
	return MaxPool2D(x, 2)
}

// DownsampleChain runs the blocks in order. An empty chain returns input.
func DownsampleChain(input *Tensor[float32], chain []Conv2DParams) (*Tensor[float32], error) {
	x := input
	for i := range chain {
		var err error
		if x, err = Downsample(x, &chain[i]); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// downsampledSize is the spatial size after one block.
func downsampledSize(n int) int {
	return ((n+1)/2) / 2
}
