package apihttp

import (
	"errors"
	"log/slog"
	"net/http"

	"torrentcache/internal/domain"
)

type cacheSnapshot struct {
	Torrents []domain.CachedTorrent `json:"torrents"`
	Usage    domain.CacheUsage      `json:"usage"`
}

func (s *Server) cacheSnapshot() cacheSnapshot {
	torrents := s.cache.Snapshot()
	if torrents == nil {
		torrents = []domain.CachedTorrent{}
	}
	return cacheSnapshot{Torrents: torrents, Usage: s.cache.Usage()}
}

func (s *Server) handleListTorrents(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "cache not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.cacheSnapshot())
}

func (s *Server) handleEvictTorrent(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "cache not configured")
		return
	}
	fp, err := domain.ParseFingerprint(r.PathValue("fingerprint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fingerprint")
		return
	}
	if err := s.cache.Evict(r.Context(), fp); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "torrent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "engine_error", err.Error())
		return
	}
	s.logger.Info("torrent evicted on request", slog.String("fingerprint", fp.String()))
	s.BroadcastCache()
	w.WriteHeader(http.StatusNoContent)
}
