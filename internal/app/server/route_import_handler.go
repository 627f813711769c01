package server

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
)

func (s *Server) runImport(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, "Importing is not configured", http.StatusServiceUnavailable)
		return
	}

	outcome, err := s.refresher.Refresh(r.Context(), "api")
	if outcome == nil {
		writeHostError(w, err)
		return
	}
	if err != nil {
		// partial results are still worth returning
		log.Warn("Import finished with errors", "error", err)
		writeJSON(w, http.StatusMultiStatus, map[string]any{
			"outcome": outcome,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) exportHosts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := s.exporter.ExportAll(r.Context(), &buf)
	if err != nil {
		writeHostError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="hosts"`)
	w.Header().Set("X-Entry-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
