package compute

// Status is the code returned by an engine call. Zero means success.
type Status int32

// Engine status codes.
const (
	StatusOK           Status = 0
	StatusInvalidInput Status = 1
	StatusBufferSize   Status = 2
	StatusInternal     Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidInput:
		return "invalid input"
	case StatusBufferSize:
		return "buffer size"
	case StatusInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Engine is a non-reentrant numeric routine that turns len(kline) input
// records into the same number of indicator records.
type Engine interface {
	// Compute fills out[i] for every kline[i]. len(out) equals len(kline).
	// A non-zero status means out holds no usable result.
	Compute(kline []Candlestick, out []Indicator) Status

	// Info describes the engine.
	Info() EngineInfo
}

// EngineInfo describes an engine implementation.
type EngineInfo struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	LayoutVersion int    `json:"layout_version"`
	Window        int    `json:"window,omitempty"`
}
