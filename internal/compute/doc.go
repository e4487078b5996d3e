// Package compute defines the boundary between the job processor and the
// external numeric engine: the fixed record layout exchanged with the engine,
// the Engine calling contract, a registry of named engines, and the Adapter
// that drives one engine call per work item.
//
// Engines are not safe for concurrent use. The Adapter does not lock; callers
// must guarantee a single caller at a time.
package compute
