package apihttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// handleFile proxies a player request to the engine's loopback file server.
// GET patterns also match HEAD.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.proxy == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "file proxy not configured")
		return
	}
	query := r.URL.Query()
	target := strings.TrimSpace(query.Get("u"))
	if target == "" {
		target = strings.TrimSpace(query.Get("url"))
	}
	if target == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing url")
		return
	}

	resp, err := s.proxy.Fetch(r.Context(), r.Method, r.Header.Get("Range"), target)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeProxyError(w, err)
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("file proxy copy interrupted",
			slog.String("range", r.Header.Get("Range")),
			slog.String("error", err.Error()),
		)
	}
}
