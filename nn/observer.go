package nn

import "slices"

// Pipeline stages reported to an Observer, in order.
const (
	StageF           = "f"
	StageG           = "g"
	StageV           = "v"
	StageProbability = "probability"
	StageAggregate   = "aggregate"
	StageOutput      = "output"
)

// StageStats summarises a stage's tensor.
type StageStats struct {
	Min  float32
	Max  float32
	Mean float32
	Size int
}

// StageEvent is sent to the observer after a stage completes.
type StageEvent struct {
	Stage string
	Shape []int
	Stats StageStats
}

// Observer receives pipeline events. Implementations must not retain or
// modify tensors; only summaries are passed.
type Observer interface {
	OnStage(event StageEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(StageEvent)

func (f ObserverFunc) OnStage(event StageEvent) { f(event) }

// notifyObserver sends a summary of data to the observer if one exists.
func notifyObserver(o Observer, stage string, shape []int, data []float32) {
	if o == nil {
		return
	}
	o.OnStage(StageEvent{
		Stage: stage,
		Shape: slices.Clone(shape),
		Stats: Summarize(data),
	})
}

// Summarize returns the range and mean of data in one pass. An empty slice
// yields zero stats.
func Summarize(data []float32) StageStats {
	if len(data) == 0 {
		return StageStats{}
	}
	lo, hi := data[0], data[0]
	sum := 0.0
	for _, x := range data {
		lo = min(lo, x)
		hi = max(hi, x)
		sum += float64(x)
	}
	return StageStats{
		Min:  lo,
		Max:  hi,
		Mean: float32(sum / float64(len(data))),
		Size: len(data),
	}
}
