package model

import "time"

// Result is the retrievable outcome of a job as kept by the result store.
// Content holds the encoded indicator series of a completed job.
type Result struct {
	ID         int64      `json:"id"`
	Status     string     `json:"status"`
	Engine     string     `json:"engine"`
	InputLen   int        `json:"input_len"`
	Content    []byte     `json:"-"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
