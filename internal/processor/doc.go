// Package processor provides the asynchronous job engine. A single
// long-lived worker goroutine drains the work queue through the compute
// adapter, and every finished item is published once to the completion
// broker's subscribers.
package processor
