package server

import (
	"net/http"
	"strings"

	"github.com/miekg/dns"

	"dnshelper/internal/api/dto"
	"dnshelper/internal/hostname"
	"dnshelper/internal/resolver"
)

// resolveHost answers GET /resolve/{hostname}?type=A|AAAA&provider=name. Without a
// provider the whole chain is asked in order.
func (s *Server) resolveHost(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, "Resolver is not configured", http.StatusServiceUnavailable)
		return
	}

	name, err := hostname.Normalize(r.PathValue("hostname"))
	if err != nil {
		writeHostError(w, err)
		return
	}
	qtype, err := resolver.ParseType(r.URL.Query().Get("type"))
	if err != nil {
		writeHostError(w, err)
		return
	}

	var target resolver.Resolver = s.resolver
	provider := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("provider")))
	if provider != "" {
		p, ok := s.resolver.Provider(provider)
		if !ok {
			writeError(w, "Unknown provider", http.StatusBadRequest)
			return
		}
		target = p
	}

	addrs, err := target.Resolve(r.Context(), name, qtype)
	if err != nil {
		writeHostError(w, err)
		return
	}
	if addrs == nil {
		addrs = []string{}
	}

	writeJSON(w, http.StatusOK, dto.Resolution{
		Hostname:  name,
		Type:      dns.TypeToString[qtype],
		Provider:  provider,
		Addresses: addrs,
	})
}
