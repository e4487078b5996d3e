// Package ema implements an exponential moving average engine over closing prices.
package ema

import (
	"math"

	"github.com/smaq/smaq/internal/compute"
)

// Name is the registry name of the engine.
const Name = "ema"

// Engine computes an exponential moving average of Close seeded with the
// first close, using alpha = 2/(window+1).
type Engine struct {
	window int
	alpha  float64
}

var _ compute.Engine = (*Engine)(nil)

// New creates an EMA engine. Non-positive windows fall back to 14.
func New(window int) *Engine {
	if window <= 0 {
		window = 14
	}
	return &Engine{window: window, alpha: 2 / float64(window+1)}
}

// Info describes the engine.
func (e *Engine) Info() compute.EngineInfo {
	return compute.EngineInfo{
		Name:          Name,
		Description:   "exponential moving average of close",
		LayoutVersion: compute.LayoutVersion,
		Window:        e.window,
	}
}

// Compute fills out with the exponential moving average of kline closes.
func (e *Engine) Compute(kline []compute.Candlestick, out []compute.Indicator) compute.Status {
	if len(out) != len(kline) {
		return compute.StatusBufferSize
	}

	var prev float64
	for i, k := range kline {
		c := float64(k.Close)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return compute.StatusInvalidInput
		}
		if i == 0 {
			prev = c
		} else {
			prev = e.alpha*c + (1-e.alpha)*prev
		}
		out[i] = compute.Indicator{Value: float32(prev)}
	}
	return compute.StatusOK
}
