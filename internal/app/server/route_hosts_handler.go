package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"dnshelper/internal/api/dto"
	"dnshelper/internal/database"
	"dnshelper/internal/hostname"
	"dnshelper/internal/hosts"
	"dnshelper/internal/resolver"
)

// writeHostError maps table and resolver errors onto status codes.
func writeHostError(w http.ResponseWriter, err error) {
	var (
		resolutionErr *resolver.ResolutionError
		storageErr    *hosts.StorageError
	)

	switch {
	case errors.Is(err, hostname.ErrInvalidHostName),
		errors.Is(err, hosts.ErrInvalidTTL),
		errors.Is(err, hosts.ErrInvalidIP),
		errors.Is(err, resolver.ErrUnsupportedType):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &resolutionErr):
		writeError(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &storageErr):
		log.Error("hosts storage failure", "op", storageErr.Op, "hostname", storageErr.Hostname, "error", storageErr.Err)
		writeError(w, "storage failure", http.StatusInternalServerError)
	default:
		log.Error("request failed", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) listHosts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.table.Entries(r.Context())
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewHostEntries(entries))
}

func (s *Server) getHost(w http.ResponseWriter, r *http.Request) {
	entry, err := s.table.Lookup(r.Context(), r.PathValue("hostname"))
	if err != nil {
		writeHostError(w, err)
		return
	}
	if entry == nil {
		writeError(w, "Host not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewHostEntry(*entry))
}

func (s *Server) addHost(w http.ResponseWriter, r *http.Request) {
	var req dto.AddHost
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var opts []hosts.SiteOption
	if req.IP != "" {
		opts = append(opts, hosts.WithIP(req.IP))
	}
	if req.TTL != nil {
		opts = append(opts, hosts.WithTTL(*req.TTL))
	}
	if req.Comment != nil {
		opts = append(opts, hosts.WithComment(*req.Comment))
	}

	added, err := s.table.AddSite(r.Context(), req.Hostname, opts...)
	if err != nil {
		writeHostError(w, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	name, _ := hostname.Normalize(req.Hostname)
	writeJSON(w, status, dto.AddHostResult{Hostname: name, Added: added})
}

func (s *Server) removeHost(w http.ResponseWriter, r *http.Request) {
	if err := s.table.RemoveSite(r.Context(), r.PathValue("hostname")); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) blockHost(w http.ResponseWriter, r *http.Request) {
	if err := s.table.BlockSite(r.Context(), r.PathValue("hostname")); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unblockHost(w http.ResponseWriter, r *http.Request) {
	if err := s.table.UnblockSite(r.Context(), r.PathValue("hostname")); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	permanent, temporary, err := database.CountHosts(r.Context())
	if err != nil {
		writeHostError(w, &hosts.StorageError{Op: "count", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, dto.HostStats{
		Permanent: permanent,
		Temporary: temporary,
		Total:     permanent + temporary,
	})
}
