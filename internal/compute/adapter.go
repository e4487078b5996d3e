package compute

import "github.com/smaq/smaq/internal/model"

// Adapter invokes an Engine on one work item at a time. It performs no
// locking and no retries.
type Adapter struct {
	engine Engine
}

// NewAdapter wraps an engine.
func NewAdapter(e Engine) *Adapter {
	return &Adapter{engine: e}
}

// Engine returns the wrapped engine's description.
func (a *Adapter) Engine() EngineInfo {
	return a.engine.Info()
}

// Compute packs the input, calls the engine exactly once and returns one
// value per input record. A non-success status yields a nil result and an
// *EngineError.
func (a *Adapter) Compute(input []model.PricePoint) ([]float64, error) {
	kline := Pack(input)
	out := make([]Indicator, len(kline))

	if status := a.Call(kline, out); status != StatusOK {
		return nil, &EngineError{Engine: a.engine.Info().Name, Status: status}
	}
	return Values(out), nil
}

// Call hands pre-allocated buffers to the engine. It panics with a
// *LayoutError when the buffers disagree in length; the engine is not called
// in that case.
func (a *Adapter) Call(kline []Candlestick, out []Indicator) Status {
	if len(out) != len(kline) {
		panic(&LayoutError{
			Engine:    a.engine.Info().Name,
			InputLen:  len(kline),
			OutputLen: len(out),
		})
	}
	return a.engine.Compute(kline, out)
}
