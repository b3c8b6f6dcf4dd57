package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"torrentcache/internal/domain"
	"torrentcache/internal/services/stream/proxy"
	"torrentcache/internal/services/torrent/resolver"
	"torrentcache/internal/usecase"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeStreamError maps a PrepareStream failure to the error envelope.
// Every pipeline failure is a 500; only malformed input is the caller's fault.
func writeStreamError(w http.ResponseWriter, err error) {
	var upstream *resolver.UpstreamStatusError
	switch {
	case errors.Is(err, usecase.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &upstream):
		writeError(w, http.StatusInternalServerError, "upstream_error", err.Error())
	case errors.Is(err, domain.ErrResolution):
		writeError(w, http.StatusInternalServerError, "resolution_error", err.Error())
	case errors.Is(err, usecase.ErrAdmissionTimeout):
		writeError(w, http.StatusInternalServerError, "admission_timeout", err.Error())
	case errors.Is(err, usecase.ErrStorageExhausted):
		writeError(w, http.StatusInternalServerError, "storage_exhausted", err.Error())
	case errors.Is(err, usecase.ErrNoCompatibleFile):
		writeError(w, http.StatusInternalServerError, "no_compatible_file", err.Error())
	case errors.Is(err, usecase.ErrEngine):
		writeError(w, http.StatusInternalServerError, "engine_error", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusInternalServerError, "request_cancelled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeProxyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, proxy.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid url")
	case errors.Is(err, proxy.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	default:
		writeError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parseOptionalPositiveInt returns 0 for an empty value.
func parseOptionalPositiveInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
