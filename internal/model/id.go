package model

import "sync/atomic"

// IDSequence hands out job identifiers. The zero value is ready to use and
// starts at 1. It is safe for concurrent use.
type IDSequence struct {
	last atomic.Int64
}

// Next returns the next identifier. Identifiers are never reused and strictly
// increase in call order.
func (s *IDSequence) Next() int64 {
	return s.last.Add(1)
}

// Last returns the most recently issued identifier, or 0 if none was issued.
func (s *IDSequence) Last() int64 {
	return s.last.Load()
}
