package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/smaq/smaq/internal/model"
	"github.com/smaq/smaq/internal/processor"
)

// doneEvent is the payload of the SSE "done" event.
type doneEvent struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	DownloadPath string `json:"download_path,omitempty"`
}

const (
	eventsPollInterval = 500 * time.Millisecond
	storedPollInterval = 10 * time.Millisecond
)

func doneEventFromResult(res *model.Result) doneEvent {
	return doneEvent{
		ID:           res.ID,
		Status:       res.Status,
		Error:        res.Error,
		DownloadPath: newJobResponse(res).DownloadPath,
	}
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before reading the store so a completion landing in between
	// is still delivered on ch.
	ch, unsub := s.processor.Broker().Subscribe(processor.DefaultSubscriberBuffer)
	defer unsub()

	res, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if res.Status != model.StatusPending {
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, "done", doneEventFromResult(res))
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	// The recorder may store a completion published just before Subscribe
	// after the lookup above; poll the store as a fallback.
	ticker := time.NewTicker(eventsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cur, err := s.store.GetResult(r.Context(), res.ID)
			if err != nil || cur.Status == model.StatusPending {
				continue
			}
			_ = writeSSEEvent(w, "done", doneEventFromResult(cur))
			if canFlush {
				flusher.Flush()
			}
			return
		case c, ok := <-ch:
			if !ok {
				// Processor shut down before the job finished.
				_ = writeSSEEvent(w, "closed", doneEvent{ID: res.ID, Status: model.StatusPending})
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if c.ID != res.ID {
				continue
			}
			// The completion reaches the recorder and this handler together;
			// report it only once the result is retrievable.
			unsub()
			cur, err := s.awaitStored(r.Context(), c.ID)
			if err != nil {
				return
			}
			_ = writeSSEEvent(w, "done", doneEventFromResult(cur))
			if canFlush {
				flusher.Flush()
			}
			return
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// awaitStored polls the store until the job leaves the pending state.
func (s *Server) awaitStored(ctx context.Context, id int64) (*model.Result, error) {
	ticker := time.NewTicker(storedPollInterval)
	defer ticker.Stop()

	for {
		cur, err := s.store.GetResult(ctx, id)
		if err != nil {
			s.logger.Error("get result for event", "job_id", id, "error", err)
			return nil, err
		}
		if cur.Status != model.StatusPending {
			return cur, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// writeSSEEvent writes a named SSE event with a JSON data line.
func writeSSEEvent(w http.ResponseWriter, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
