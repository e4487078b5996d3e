package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smaq/smaq/internal/csvio"
	"github.com/smaq/smaq/internal/model"
)

// Recorder turns completions into stored results. It is meant to be the
// first subscriber of the processor's broker.
type Recorder struct {
	store  Store
	engine string
	logger *slog.Logger
}

// NewRecorder creates a recorder writing results produced by the named engine.
func NewRecorder(s Store, engine string, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, engine: engine, logger: logger}
}

// Run records every completion received on ch until ch is closed or ctx is done.
func (r *Recorder) Run(ctx context.Context, ch <-chan model.Completion) {
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Record(ctx, c); err != nil {
				r.logger.Error("record result", "job_id", c.ID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Record stores the outcome of one completion.
func (r *Recorder) Record(ctx context.Context, c model.Completion) error {
	finished := c.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	dur := c.Duration().Milliseconds()

	res := &model.Result{
		ID:         c.ID,
		Status:     c.Status(),
		Engine:     r.engine,
		InputLen:   c.InputLen,
		DurationMS: &dur,
		CreatedAt:  c.SubmittedAt,
		FinishedAt: &finished,
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = finished
	}

	if c.Succeeded() {
		content, err := csvio.EncodeIndicator(r.engine, c.Output)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		res.Content = content
	} else if c.Err != nil {
		res.Error = c.Err.Error()
	} else {
		res.Error = "processing failed"
	}

	if err := r.store.Finish(ctx, res); err != nil {
		return fmt.Errorf("finish result %d: %w", c.ID, err)
	}
	return nil
}
