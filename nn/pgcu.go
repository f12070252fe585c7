package nn

import (
	"log/slog"
)

// PGCU is a configured fusion unit. Every forward call reads the caller's
// parameter bundle afresh, so updates made between calls take effect on the
// next call. The bundle must not change while a call is running.
type PGCU struct {
	cfg    Config
	params *Params
	engine *coupling
	logger *slog.Logger
}

// Geometry is the resolved spatial layout of one forward call.
type Geometry struct {
	Batch   int
	Channel int

	Height int // spectral grid
	Width  int

	FineHeight int // guide grid, 4×spectral
	FineWidth  int

	CoarseHeight int // G and V grid
	CoarseWidth  int
}

// Result carries the output of ForwardDetailed.
type Result struct {
	Output      *Tensor[float32] // (B, C, 4H, 4W)
	Probability *Tensor[float32] // (B, 4H, 4W, C, OH, OW)
	Entropy     *Tensor[float32] // (B, 4H, 4W), nil unless Config.Entropy

	// Probability rows whose sum drifted beyond Config.SumTolerance.
	Warnings     []NumericalWarning
	WarningCount int

	Geometry Geometry
}

// New builds a unit from a configuration and a parameter bundle. Every error
// wraps ErrConfiguration.
func New(cfg Config, params *Params) (*PGCU, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(cfg); err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == nil {
		backend = CPUBackend{Workers: cfg.Workers}
	}

	return &PGCU{
		cfg:    cfg,
		params: params,
		engine: &coupling{
			layout:  newRearranger(cfg.Strategy),
			backend: backend,
			workers: cfg.workers(),
			tol:     cfg.sumTolerance(),
		},
		logger: cfg.logger(),
	}, nil
}

// Config returns the configuration the unit was built with.
func (m *PGCU) Config() Config { return m.cfg }

// Params returns the parameter bundle the unit was built with.
func (m *PGCU) Params() *Params { return m.params }

// CheckShapes validates a guide/spectral pair and resolves its geometry.
// Every error wraps ErrShapeMismatch.
func (m *PGCU) CheckShapes(guide, spectral *Tensor[float32]) (Geometry, error) {
	gn, gc, gh, gw, ok := guide.Dims4()
	if !ok {
		return Geometry{}, shapeErrorf("guide must be (B, 1, H, W), got %v", shapeOf(guide))
	}
	sn, sc, sh, sw, ok := spectral.Dims4()
	if !ok {
		return Geometry{}, shapeErrorf("spectral must be (B, C, H, W), got %v", shapeOf(spectral))
	}
	if len(guide.Data) != gn*gc*gh*gw || len(spectral.Data) != sn*sc*sh*sw {
		return Geometry{}, shapeErrorf("tensor data does not match its shape")
	}
	if gn != sn {
		return Geometry{}, shapeErrorf("batch sizes differ: guide %d, spectral %d", gn, sn)
	}
	if gn < 1 {
		return Geometry{}, shapeErrorf("empty batch")
	}
	if gc != 1 {
		return Geometry{}, shapeErrorf("guide must have 1 channel, got %d", gc)
	}
	if sc != m.cfg.Channel {
		return Geometry{}, shapeErrorf("spectral has %d channels, unit is configured for %d", sc, m.cfg.Channel)
	}
	if sh < 1 || sw < 1 || gh != 4*sh || gw != 4*sw {
		return Geometry{}, shapeErrorf("guide %dx%d must be exactly 4x spectral %dx%d", gh, gw, sh, sw)
	}

	ch, cw, err := coarseGrid(m.cfg.NumberBlocks, gh, gw, sh, sw)
	if err != nil {
		return Geometry{}, err
	}

	return Geometry{
		Batch:        gn,
		Channel:      sc,
		Height:       sh,
		Width:        sw,
		FineHeight:   gh,
		FineWidth:    gw,
		CoarseHeight: ch,
		CoarseWidth:  cw,
	}, nil
}

// coarseGrid runs the guide (gh×gw) through blocks downsampling blocks and
// the spectral image (sh×sw) through one fewer. Both must land on the same
// non-empty grid.
func coarseGrid(blocks, gh, gw, sh, sw int) (int, int, error) {
	ph, pw := gh, gw
	for i := 0; i < blocks; i++ {
		ph, pw = downsampledSize(ph), downsampledSize(pw)
		if ph == 0 || pw == 0 {
			return 0, 0, shapeErrorf("guide %dx%d collapses after %d downsampling blocks", gh, gw, i+1)
		}
	}
	mh, mw := sh, sw
	for i := 0; i < blocks-1; i++ {
		mh, mw = downsampledSize(mh), downsampledSize(mw)
		if mh == 0 || mw == 0 {
			return 0, 0, shapeErrorf("spectral %dx%d collapses after %d downsampling blocks", sh, sw, i+1)
		}
	}
	if ph != mh || pw != mw {
		return 0, 0, shapeErrorf("coarse grids differ: guide pyramid %dx%d, spectral pyramid %dx%d", ph, pw, mh, mw)
	}
	return ph, pw, nil
}

// Forward fuses guide (B, 1, 4H, 4W) and spectral (B, C, H, W) into a
// (B, C, 4H, 4W) image. Input shape errors wrap ErrShapeMismatch; a
// parameter bundle that no longer matches the configuration fails with
// ErrConfiguration.
func (m *PGCU) Forward(guide, spectral *Tensor[float32]) (*Tensor[float32], error) {
	res, err := m.ForwardDetailed(guide, spectral)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// ForwardDetailed is Forward that also returns the band probabilities, the
// optional entropy map and any numerical warnings.
func (m *PGCU) ForwardDetailed(guide, spectral *Tensor[float32]) (*Result, error) {
	geo, err := m.CheckShapes(guide, spectral)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("pgcu forward",
		"batch", geo.Batch,
		"channel", geo.Channel,
		"spectral", []int{geo.Height, geo.Width},
		"fine", []int{geo.FineHeight, geo.FineWidth},
		"coarse", []int{geo.CoarseHeight, geo.CoarseWidth},
		"strategy", m.cfg.Strategy.String())

	p := m.params
	if err := p.Validate(m.cfg); err != nil {
		return nil, err
	}
	obs := m.cfg.Observer

	f, err := fineFeatures(p, guide, spectral)
	if err != nil {
		return nil, err
	}
	notifyObserver(obs, StageF, f.Shape, f.Data)

	g, err := coarseFeatures(p.GMConv, p.GPConv, &p.GConv, guide, spectral)
	if err != nil {
		return nil, err
	}
	notifyObserver(obs, StageG, g.Shape, g.Data)

	v, err := coarseFeatures(p.VMConv, p.VPConv, &p.VConv, guide, spectral)
	if err != nil {
		return nil, err
	}
	notifyObserver(obs, StageV, v.Shape, v.Data)

	l := m.cfg.BandVecLen()
	coupled, err := m.engine.run(
		newBandProjector(p.FLinear, m.cfg.VecLen, l),
		newBandProjector(p.GLinear, m.cfg.VecLen, l),
		f, g, v)
	if err != nil {
		return nil, err
	}

	prob := NewTensorFromSlice(coupled.probability,
		geo.Batch, geo.FineHeight, geo.FineWidth, geo.Channel, geo.CoarseHeight, geo.CoarseWidth)
	notifyObserver(obs, StageProbability, prob.Shape, prob.Data)

	agg := NewTensorFromSlice(coupled.aggregate, geo.Batch, geo.Channel, geo.FineHeight, geo.FineWidth)
	notifyObserver(obs, StageAggregate, agg.Shape, agg.Data)

	out, err := Conv2D(agg, &p.FineAdjust)
	if err != nil {
		return nil, err
	}
	notifyObserver(obs, StageOutput, out.Shape, out.Data)

	if coupled.warningCount > 0 {
		first := coupled.warnings[0]
		m.logger.Warn("pgcu probability rows drifted from 1",
			"rows", coupled.warningCount,
			"tolerance", m.cfg.sumTolerance(),
			"first", first.String())
	}

	res := &Result{
		Output:       out,
		Probability:  prob,
		Warnings:     coupled.warnings,
		WarningCount: coupled.warningCount,
		Geometry:     geo,
	}
	if m.cfg.Entropy {
		if res.Entropy, err = InformationEntropy(prob); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func shapeOf(t *Tensor[float32]) []int {
	if t == nil {
		return nil
	}
	return t.Shape
}
