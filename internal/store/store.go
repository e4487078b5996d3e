package store

import (
	"context"
	"errors"

	"github.com/smaq/smaq/internal/model"
)

var (
	// ErrInvalidTransition is returned when a result status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNilContent is returned when a completed result carries no content.
	ErrNilContent = errors.New("completed result content cannot be nil")
)

// ResultStats holds aggregate job statistics.
type ResultStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the operations of the job result cache.
type Store interface {
	CreatePending(ctx context.Context, r *model.Result) error
	Finish(ctx context.Context, r *model.Result) error
	GetResult(ctx context.Context, id int64) (*model.Result, error)
	ListResults(ctx context.Context, limit, offset int) ([]*model.Result, int, error)
	GetResultStats(ctx context.Context) (*ResultStats, error)
	Close() error
}
