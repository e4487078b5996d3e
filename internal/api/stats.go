package api

import (
	"net/http"

	"github.com/smaq/smaq/internal/compute"
	"github.com/smaq/smaq/internal/processor"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int             `json:"total"`
	ByStatus      map[string]int  `json:"by_status"`
	AvgDurationMS float64         `json:"avg_duration_ms"`
	Worker        processor.Stats `json:"worker"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetResultStats(r.Context())
	if err != nil {
		s.logger.Error("get result stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		AvgDurationMS: stats.AvgDurationMS,
		Worker:        s.processor.Stats(),
	})
}

func (s *Server) handleListEngines(w http.ResponseWriter, _ *http.Request) {
	engines := s.registry.List()
	if engines == nil {
		engines = []compute.EngineInfo{}
	}
	s.writeJSON(w, http.StatusOK, engines)
}
