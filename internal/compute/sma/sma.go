// Package sma implements a simple moving average engine over closing prices.
package sma

import (
	"math"

	"github.com/smaq/smaq/internal/compute"
)

// Name is the registry name of the engine.
const Name = "sma"

// DefaultWindow is used when a non-positive window is configured.
const DefaultWindow = 14

// Engine computes a trailing simple moving average of Close. Until a full
// window is available the average covers the prefix seen so far.
type Engine struct {
	window int
}

var _ compute.Engine = (*Engine)(nil)

// New creates an SMA engine with the given window.
func New(window int) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{window: window}
}

// Info describes the engine.
func (e *Engine) Info() compute.EngineInfo {
	return compute.EngineInfo{
		Name:          Name,
		Description:   "simple moving average of close",
		LayoutVersion: compute.LayoutVersion,
		Window:        e.window,
	}
}

// Compute fills out with the moving average of kline closes.
func (e *Engine) Compute(kline []compute.Candlestick, out []compute.Indicator) compute.Status {
	if len(out) != len(kline) {
		return compute.StatusBufferSize
	}
	for _, k := range kline {
		if !finite(k.Close) {
			return compute.StatusInvalidInput
		}
	}

	var sum float64
	for i, k := range kline {
		sum += float64(k.Close)
		n := i + 1
		if i >= e.window {
			sum -= float64(kline[i-e.window].Close)
			n = e.window
		}
		out[i] = compute.Indicator{Value: float32(sum / float64(n))}
	}
	return compute.StatusOK
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
