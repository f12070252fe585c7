package nn

import "strconv"

// Blueprint contains the structural information of a unit: every weighted
// component with its parameter count and, when a spectral size is given,
// the per-sample shapes flowing through it.
type Blueprint struct {
	Channel      int `json:"channel"`
	VecLen       int `json:"vec_len"`
	BandVecLen   int `json:"band_vec_len"`
	NumberBlocks int `json:"number_blocks"`

	GuideShape    []int `json:"guide_shape,omitempty"`
	SpectralShape []int `json:"spectral_shape,omitempty"`
	OutputShape   []int `json:"output_shape,omitempty"`

	TotalParams int                  `json:"total_parameters"`
	Components  []ComponentTelemetry `json:"components"`
}

// ComponentTelemetry contains metadata about one component.
type ComponentTelemetry struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // "conv2d", "pyramid", "downsample", "band_projection", "coupling"
	Parameters int    `json:"parameters"`

	// Per-sample shapes, (C, H, W) for maps
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Downsampling blocks of a pyramid
	Blocks []ComponentTelemetry `json:"blocks,omitempty"`
}

// ExtractBlueprint describes the unit cfg builds. height and width are the
// spectral size used to fill in shapes; pass 0, 0 to omit them.
func ExtractBlueprint(cfg Config, height, width int) (Blueprint, error) {
	if err := cfg.Validate(); err != nil {
		return Blueprint{}, err
	}

	withShapes := height > 0 || width > 0
	var oh, ow int
	if withShapes {
		if height < 1 || width < 1 {
			return Blueprint{}, shapeErrorf("spectral size %dx%d is not positive", height, width)
		}
		var err error
		if oh, ow, err = coarseGrid(cfg.NumberBlocks, 4*height, 4*width, height, width); err != nil {
			return Blueprint{}, err
		}
	}

	c, vec, l := cfg.Channel, cfg.VecLen, cfg.BandVecLen()
	fh, fw := 4*height, 4*width
	p := NewParams(cfg)

	shape := func(dims ...int) []int {
		if !withShapes {
			return nil
		}
		return dims
	}
	conv := func(name string, cp *Conv2DParams, h, w int) ComponentTelemetry {
		outH, outW := cp.OutputSize(h, w)
		return ComponentTelemetry{
			Name:        name,
			Type:        "conv2d",
			Parameters:  cp.NumParams(),
			InputShape:  shape(cp.InChannels, h, w),
			OutputShape: shape(cp.OutChannels, outH, outW),
		}
	}
	pyramid := func(name string, chain []Conv2DParams, in, h, w int) ComponentTelemetry {
		tel := ComponentTelemetry{Name: name, Type: "pyramid", InputShape: shape(in, h, w)}
		out := in
		for i := range chain {
			nh, nw := downsampledSize(h), downsampledSize(w)
			block := ComponentTelemetry{
				Name:        name + ".DSBlock" + strconv.Itoa(i),
				Type:        "downsample",
				Parameters:  chain[i].NumParams(),
				InputShape:  shape(chain[i].InChannels, h, w),
				OutputShape: shape(chain[i].OutChannels, nh, nw),
			}
			tel.Blocks = append(tel.Blocks, block)
			tel.Parameters += block.Parameters
			h, w, out = nh, nw, chain[i].OutChannels
		}
		tel.OutputShape = shape(out, h, w)
		return tel
	}
	bands := func(name string, set []BandProjection) ComponentTelemetry {
		tel := ComponentTelemetry{
			Name:        name,
			Type:        "band_projection",
			InputShape:  []int{vec},
			OutputShape: []int{c, l},
		}
		for i := range set {
			tel.Parameters += len(set[i].Weight) + len(set[i].Bias) + len(set[i].Gamma) + len(set[i].Beta)
		}
		return tel
	}

	components := []ComponentTelemetry{
		conv("FPConv", &p.FPConv, fh, fw),
		conv("FMConv", &p.FMConv, fh, fw),
		conv("FConv", &p.FConv, fh, fw),
		pyramid("GPConv", p.GPConv, 1, fh, fw),
		pyramid("GMConv", p.GMConv, c, height, width),
		conv("GConv", &p.GConv, oh, ow),
		pyramid("VPConv", p.VPConv, 1, fh, fw),
		pyramid("VMConv", p.VMConv, c, height, width),
		conv("VConv", &p.VConv, oh, ow),
		bands("FLinear", p.FLinear),
		bands("GLinear", p.GLinear),
		{
			Name:        "Coupling",
			Type:        "coupling",
			InputShape:  shape(c, oh, ow),
			OutputShape: shape(fh, fw, c, oh, ow),
		},
		conv("FineAdjust", &p.FineAdjust, fh, fw),
	}

	bp := Blueprint{
		Channel:       c,
		VecLen:        vec,
		BandVecLen:    l,
		NumberBlocks:  cfg.NumberBlocks,
		GuideShape:    shape(1, fh, fw),
		SpectralShape: shape(c, height, width),
		OutputShape:   shape(c, fh, fw),
		Components:    components,
	}
	for _, comp := range components {
		bp.TotalParams += comp.Parameters
	}
	return bp, nil
}
