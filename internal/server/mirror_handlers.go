package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/BadgerOps/mirrorrank/internal/mirrorlist"
	"github.com/BadgerOps/mirrorrank/internal/safety"
	"github.com/BadgerOps/mirrorrank/internal/store"
)

const (
	maxSpeedTestBodyBytes = 64 * 1024
	maxSpeedTestURLs      = 100
)

func (s *Server) handleMirrors(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.parseCriteria(r.URL.Query())
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.generator.Generate(r.Context(), criteria)
	if err != nil {
		s.logger.Warn("mirror selection failed", "error", err)
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMirrorlist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria, err := s.parseCriteria(q)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := s.config.Output.Limit
	if q.Has("limit") {
		limit, err = strconv.Atoi(q.Get("limit"))
		if err != nil || limit < 0 {
			jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	res, err := s.generator.Generate(r.Context(), criteria)
	if err != nil {
		s.logger.Warn("mirror selection failed", "error", err)
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	err = mirrorlist.Write(w, res.Mirrors, mirrorlist.Options{
		Limit:       limit,
		Criteria:    res.Criteria,
		SourceURL:   res.SourceURL,
		GeneratedAt: res.GeneratedAt,
	})
	if err != nil {
		s.logger.Error("failed to write mirrorlist response", "error", err)
	}
}

func (s *Server) handleSpeedTest(w http.ResponseWriter, r *http.Request) {
	type speedTestRequest struct {
		URLs []string `json:"urls"`
		TopN int      `json:"top_n"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSpeedTestBodyBytes)

	var req speedTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if len(req.URLs) == 0 {
		jsonError(w, http.StatusBadRequest, "urls must not be empty")
		return
	}
	if len(req.URLs) > maxSpeedTestURLs {
		jsonError(w, http.StatusBadRequest, "too many urls")
		return
	}
	for _, u := range req.URLs {
		if _, err := safety.ValidateHTTPURL(u); err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if req.TopN <= 0 {
		req.TopN = 10
	}

	if s.speedLimiter != nil && !s.speedLimiter.Allow() {
		w.Header().Set("Retry-After", "10")
		jsonError(w, http.StatusTooManyRequests, "speed test rate limit exceeded")
		return
	}

	results := s.speed.SpeedTest(r.Context(), req.URLs, req.TopN)
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs := []store.Run{}
	if st := s.generator.Store(); st != nil {
		list, err := st.ListRuns(limit)
		if err != nil {
			s.logger.Error("failed to list runs", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		runs = append(runs, list...)
	}

	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunMirrors(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "run id must be an integer")
		return
	}

	st := s.generator.Store()
	if st == nil {
		jsonError(w, http.StatusNotFound, "history is disabled")
		return
	}

	if _, err := st.GetRun(id); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			jsonError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("failed to get run", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	mirrors, err := st.ListRunMirrors(id)
	if err != nil {
		s.logger.Error("failed to list run mirrors", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list run mirrors")
		return
	}
	if mirrors == nil {
		mirrors = []store.RunMirror{}
	}

	writeJSON(w, http.StatusOK, mirrors)
}
