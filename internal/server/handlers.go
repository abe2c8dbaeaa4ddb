package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/BadgerOps/mirrorrank/internal/config"
	"github.com/BadgerOps/mirrorrank/internal/mirror"
)

// handleStatus reports server health and configuration.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  s.version,
		"source":   s.config.Source.URL,
		"history":  s.generator.HistoryEnabled(),
		"criteria": s.config.Criteria.Criteria(),
	})
}

// parseCriteria overlays query parameters on the configured criteria.
// Unknown protocols and countries are logged and select nothing.
func (s *Server) parseCriteria(q url.Values) (mirror.Criteria, error) {
	cc := s.config.Criteria
	if q.Has("country") {
		cc.Country = q.Get("country")
	}
	if q.Has("protocol") {
		cc.Protocols = nil
		for _, p := range strings.Split(q.Get("protocol"), ",") {
			if p = strings.TrimSpace(p); p != "" {
				cc.Protocols = append(cc.Protocols, p)
			}
		}
	}
	if q.Has("ipv4") {
		v, err := strconv.ParseBool(q.Get("ipv4"))
		if err != nil {
			return mirror.Criteria{}, fmt.Errorf("ipv4 must be a boolean")
		}
		cc.RequireIPv4 = v
	}
	if q.Has("ipv6") {
		v, err := strconv.ParseBool(q.Get("ipv6"))
		if err != nil {
			return mirror.Criteria{}, fmt.Errorf("ipv6 must be a boolean")
		}
		cc.RequireIPv6 = v
	}
	if q.Has("max_delay") {
		v, err := strconv.ParseInt(q.Get("max_delay"), 10, 64)
		if err != nil {
			return mirror.Criteria{}, fmt.Errorf("max_delay must be an integer")
		}
		cc.MaxDelay = &v
	}

	if err := config.ValidateCriteria(cc); err != nil {
		return mirror.Criteria{}, err
	}
	for _, w := range cc.Warnings() {
		s.logger.Warn(w)
	}
	return cc.Criteria(), nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
