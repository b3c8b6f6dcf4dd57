package apihttp

import (
	"net/http"

	"torrentcache/internal/domain"
)

type healthResponse struct {
	Status string             `json:"status"`
	Usage  *domain.CacheUsage `json:"usage,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.cache != nil {
		usage := s.cache.Usage()
		resp.Usage = &usage
	}
	writeJSON(w, http.StatusOK, resp)
}
