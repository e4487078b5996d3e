package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineFailure is wrapped by every error reporting a non-success engine status.
	ErrEngineFailure = errors.New("engine failure")

	// ErrLayoutViolation is wrapped by LayoutError.
	ErrLayoutViolation = errors.New("engine buffer layout violation")
)

// EngineError reports a non-success status returned by an engine.
type EngineError struct {
	Engine string
	Status Status
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: status %d (%s)", e.Engine, int32(e.Status), e.Status)
}

func (e *EngineError) Unwrap() error { return ErrEngineFailure }

// LayoutError describes buffers that do not satisfy the engine layout. The
// Adapter panics with a *LayoutError rather than calling the engine with
// mismatched buffers.
type LayoutError struct {
	Engine    string
	InputLen  int
	OutputLen int
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("engine %s: %d input records but %d output records",
		e.Engine, e.InputLen, e.OutputLen)
}

func (e *LayoutError) Unwrap() error { return ErrLayoutViolation }
