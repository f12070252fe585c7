package nn

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by New and Config.Validate when the unit
	// cannot be built from the given configuration or parameters.
	ErrConfiguration = errors.New("pgcu: invalid configuration")

	// ErrShapeMismatch is returned by Forward when the inputs do not fit the
	// configured unit.
	ErrShapeMismatch = errors.New("pgcu: shape mismatch")
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func shapeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}

// NumericalWarning flags a probability row whose sum drifted from 1 beyond
// Config.SumTolerance. It does not fail the forward pass.
type NumericalWarning struct {
	Band  int
	Batch int
	Row   int // fine location, h*fineWidth + w
	Sum   float64
}

func (w NumericalWarning) String() string {
	return fmt.Sprintf("band %d batch %d row %d: probability sum %g", w.Band, w.Batch, w.Row, w.Sum)
}
