package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/perchrun/perch/internal/collect"
)

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Entries []entryJSON `json:"entries"`
}

type entryJSON struct {
	Name         string `json:"name"`
	Subtitle     string `json:"subtitle,omitempty"`
	Plugin       int    `json:"plugin"`
	PerfectMatch bool   `json:"perfect_match,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	entries, err := s.searcher.Search(ctx, req.Query)
	if err != nil {
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(entries))
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeError(w, http.StatusNotImplemented, "no file index configured")
		return
	}
	if err := s.index.Rebuild(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindexed"})
}

func toResponse(entries []collect.GenericEntry) queryResponse {
	out := queryResponse{Entries: make([]entryJSON, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryJSON{
			Name:         e.Name,
			Subtitle:     e.Subtitle,
			Plugin:       e.Plugin,
			PerfectMatch: e.PerfectMatch,
		})
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
