package nn

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// Strategy selects how the coupling engine rearranges tensors between the
// projection, scoring and aggregation stages. Every strategy produces
// bit-identical results.
type Strategy int

const (
	StrategyIndex     Strategy = 0 // explicit transpose + reshape index arithmetic
	StrategyRearrange Strategy = 1 // axis permutation through github.com/pdevine/tensor
)

func (s Strategy) String() string {
	switch s {
	case StrategyIndex:
		return "index"
	case StrategyRearrange:
		return "rearrange"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts a strategy name back to its value.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "index", "":
		return StrategyIndex, nil
	case "rearrange":
		return StrategyRearrange, nil
	default:
		return 0, configErrorf("unknown strategy %q", name)
	}
}

// DefaultSumTolerance is the allowed drift of a probability row sum from 1.
const DefaultSumTolerance = 1e-5

// Config describes the shape of a PGCU unit and how it executes.
type Config struct {
	Channel      int // number of spectral bands
	VecLen       int // width of F and G feature vectors, divisible by Channel
	NumberBlocks int // depth of the guide pyramid, spectral pyramid is one shorter

	Strategy Strategy
	Workers  int     // concurrent coupling tasks, 0 = GOMAXPROCS
	Backend  Backend // row softmax implementation, nil = CPUBackend

	Entropy      bool    // compute the per-location entropy map in ForwardDetailed
	SumTolerance float64 // 0 = DefaultSumTolerance

	Observer Observer
	Logger   *slog.Logger
}

// DefaultConfig returns the 4-band, 128-wide, 3-block configuration.
func DefaultConfig() Config {
	return Config{
		Channel:      4,
		VecLen:       128,
		NumberBlocks: 3,
	}
}

// BandVecLen is the projected per-band vector length.
func (c Config) BandVecLen() int {
	if c.Channel <= 0 {
		return 0
	}
	return c.VecLen / c.Channel
}

// Validate reports configuration errors wrapped in ErrConfiguration.
func (c Config) Validate() error {
	if c.Channel < 1 {
		return configErrorf("channel must be positive, got %d", c.Channel)
	}
	if c.VecLen < 1 {
		return configErrorf("vector length must be positive, got %d", c.VecLen)
	}
	if c.VecLen%c.Channel != 0 {
		return configErrorf("vector length %d is not divisible by channel count %d", c.VecLen, c.Channel)
	}
	if c.NumberBlocks < 1 {
		return configErrorf("number of blocks must be at least 1, got %d", c.NumberBlocks)
	}
	if c.Strategy != StrategyIndex && c.Strategy != StrategyRearrange {
		return configErrorf("unknown strategy %d", int(c.Strategy))
	}
	if c.Workers < 0 {
		return configErrorf("workers must not be negative, got %d", c.Workers)
	}
	if c.SumTolerance < 0 {
		return configErrorf("sum tolerance must not be negative, got %g", c.SumTolerance)
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) sumTolerance() float64 {
	if c.SumTolerance > 0 {
		return c.SumTolerance
	}
	return DefaultSumTolerance
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
