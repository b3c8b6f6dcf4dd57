package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"torrentcache/internal/domain"
	"torrentcache/internal/usecase"
)

type streamRequest struct {
	SourceURL string `json:"sourceUrl"`
	Season    *int   `json:"season,omitempty"`
	Episode   *int   `json:"episode,omitempty"`
}

type streamResponse struct {
	StreamURL   string             `json:"streamUrl"`
	FileName    string             `json:"fileName"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	Length      int64              `json:"length"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.prepareStream == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream use case not configured")
		return
	}

	var body streamRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStreamBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	body.SourceURL = strings.TrimSpace(body.SourceURL)
	if body.SourceURL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sourceUrl is required")
		return
	}

	var hint domain.EpisodeHint
	if body.Season != nil {
		if *body.Season < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid season")
			return
		}
		hint.Season = *body.Season
	}
	if body.Episode != nil {
		if *body.Episode < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid episode")
			return
		}
		hint.Episode = *body.Episode
	}

	result, err := s.prepareStream.Execute(r.Context(), usecase.PrepareStreamInput{
		SourceURL: body.SourceURL,
		Hint:      hint,
	})
	if err != nil {
		s.logger.Warn("stream preparation failed",
			slog.String("sourceUrl", truncate(body.SourceURL, 180)),
			slog.String("error", err.Error()),
		)
		writeStreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, streamResponse{
		StreamURL:   result.StreamURL,
		FileName:    result.File.Path,
		Fingerprint: result.Fingerprint,
		Length:      result.File.Length,
	})
}
