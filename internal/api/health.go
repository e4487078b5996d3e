package api

import (
	"net/http"

	"github.com/smaq/smaq/internal/processor"
)

type healthResponse struct {
	Status string          `json:"status"`
	Worker processor.Stats `json:"worker"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Worker: s.processor.Stats(),
	})
}
