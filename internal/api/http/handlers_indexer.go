package apihttp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"torrentcache/internal/domain"
)

const indexerSearchTimeout = 15 * time.Second

type indexerSearchResponse struct {
	Results []domain.Candidate `json:"results"`
}

func (s *Server) handleIndexerSearch(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer_unavailable", "indexer not configured")
		return
	}
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	season, err := parseOptionalPositiveInt(query.Get("season"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid season")
		return
	}
	episode, err := parseOptionalPositiveInt(query.Get("episode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid episode")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), indexerSearchTimeout)
	defer cancel()

	results, err := s.indexer.Search(ctx, domain.IndexerQuery{Query: text, Season: season, Episode: episode})
	if err != nil {
		writeError(w, http.StatusBadGateway, "indexer_error", err.Error())
		return
	}
	if results == nil {
		results = []domain.Candidate{}
	}
	writeJSON(w, http.StatusOK, indexerSearchResponse{Results: results})
}
