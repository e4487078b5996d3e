package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smaq/smaq/internal/csvio"
	"github.com/smaq/smaq/internal/model"
	"github.com/smaq/smaq/internal/processor"
	"github.com/smaq/smaq/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	uploadField      = "file"
	downloadFilename = "Output.csv"
)

// jobResponse is the JSON view of a job.
type jobResponse struct {
	*model.Result
	DownloadPath string `json:"download_path,omitempty"`
}

// submitResponse is the JSON response for POST /v1/jobs.
type submitResponse struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	DownloadPath string `json:"download_path"`
}

// listJobsResponse wraps the paginated list response.
type listJobsResponse struct {
	Jobs   []jobResponse `json:"jobs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func downloadPath(id int64) string {
	return fmt.Sprintf("/v1/jobs/%d/download", id)
}

func newJobResponse(r *model.Result) jobResponse {
	resp := jobResponse{Result: r}
	if r.Status == model.StatusCompleted {
		resp.DownloadPath = downloadPath(r.ID)
	}
	return resp
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	body, err := s.uploadBody(r)
	if err != nil {
		s.rejectUpload(w, err)
		return
	}
	defer body.Close()

	points, err := csvio.ReadPricePoints(body)
	if err != nil {
		s.rejectUpload(w, err)
		return
	}
	jobUploadRecords.Observe(float64(len(points)))

	id := s.processor.NextID()
	res := &model.Result{
		ID:        id,
		Status:    model.StatusPending,
		Engine:    s.opts.Engine,
		InputLen:  len(points),
		CreatedAt: time.Now().UTC(),
	}
	// The pending record must exist before the worker can finish the job.
	if err := s.store.CreatePending(r.Context(), res); err != nil {
		s.logger.Error("create pending result", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	if err := s.processor.Enqueue(model.NewWorkItem(id, points)); err != nil {
		s.logger.Warn("enqueue job", "job_id", id, "error", err)
		finished := time.Now().UTC()
		res.Status = model.StatusFailed
		res.Error = err.Error()
		res.FinishedAt = &finished
		if ferr := s.store.Finish(r.Context(), res); ferr != nil {
			s.logger.Error("fail rejected job", "job_id", id, "error", ferr)
		}
		if errors.Is(err, processor.ErrClosed) {
			jobUploadsRejected.WithLabelValues(rejectClosed).Inc()
			s.writeError(w, http.StatusServiceUnavailable, "service is shutting down")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	s.logger.Debug("job submitted", "job_id", id, "records", len(points))
	s.writeJSON(w, http.StatusAccepted, submitResponse{
		ID:           id,
		Status:       model.StatusPending,
		DownloadPath: downloadPath(id),
	})
}

// rejectUpload maps a submission error to a client error response.
func (s *Server) rejectUpload(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		jobUploadsRejected.WithLabelValues(rejectTooLarge).Inc()
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
	case errors.Is(err, csvio.ErrNoRecords):
		jobUploadsRejected.WithLabelValues(rejectEmpty).Inc()
		s.writeError(w, http.StatusBadRequest, "file is empty")
	default:
		jobUploadsRejected.WithLabelValues(rejectInvalid).Inc()
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid price data: %v", err))
	}
}

// uploadBody returns the CSV document of a submission: the "file" part of a
// multipart form, or the raw request body otherwise.
func (s *Server) uploadBody(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return r.Body, nil
	}

	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	f, _, err := r.FormFile(uploadField)
	if err != nil {
		return nil, csvio.ErrNoRecords
	}
	return f, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, newJobResponse(res))
}

func (s *Server) handleDownloadJob(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if res.Status != model.StatusCompleted {
		s.writeError(w, http.StatusNotFound, "job output not available")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadFilename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Content); err != nil {
		s.logger.Error("write download", "job_id", res.ID, "error", err)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	results, total, err := s.store.ListResults(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list results", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	jobs := make([]jobResponse, len(results))
	for i, res := range results {
		jobs[i] = newJobResponse(res)
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// lookupJob resolves the {id} URL parameter. On failure it writes the error
// response and returns false.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*model.Result, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}

	res, err := s.store.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get result", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return nil, false
	}
	return res, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
