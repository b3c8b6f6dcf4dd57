package anacrolix

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"torrentcache/internal/domain"
)

// streamReadahead is how far past the read position pieces are requested.
const streamReadahead = 16 << 20

var (
	errInvalidRange        = errors.New("invalid range")
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

func (e *Engine) fileHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{fingerprint}/{index}/{name...}", e.serveFile)
	mux.HandleFunc("HEAD /{fingerprint}/{index}/{name...}", e.serveFile)
	// Without this the mux answers a bare /{fingerprint}/{index} with a
	// redirect to the trailing-slash form.
	mux.HandleFunc("/{fingerprint}/{index}", http.NotFound)
	return mux
}

// serveFile streams one torrent file with single-range support. The reader
// blocks until pieces arrive instead of returning early EOFs, so a slow
// swarm stalls the response rather than truncating it.
func (e *Engine) serveFile(w http.ResponseWriter, r *http.Request) {
	fp, err := domain.ParseFingerprint(r.PathValue("fingerprint"))
	if err != nil {
		http.Error(w, "unknown torrent", http.StatusNotFound)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "unknown file", http.StatusNotFound)
		return
	}
	mt := e.lookup(fp)
	if mt == nil {
		http.Error(w, "unknown torrent", http.StatusNotFound)
		return
	}
	if !infoReady(mt.t) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "metadata not ready", http.StatusServiceUnavailable)
		return
	}
	file, ok := mt.file(index)
	if !ok {
		http.Error(w, "unknown file", http.StatusNotFound)
		return
	}

	size := file.Length()
	ext := strings.ToLower(path.Ext(file.DisplayPath()))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = fallbackContentType(ext)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	reader := file.NewReader()
	defer reader.Close()
	reader.SetReadahead(streamReadahead)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := io.CopyN(w, reader, size); err != nil {
			e.logger.Debug("file copy interrupted",
				slog.String("fingerprint", fp.String()),
				slog.Int("fileIndex", index),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if errors.Is(err, errRangeNotSatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if err != nil {
		http.Error(w, "invalid range", http.StatusBadRequest)
		return
	}
	if _, err := reader.Seek(start, io.SeekStart); err != nil {
		http.Error(w, "failed to seek stream", http.StatusInternalServerError)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.CopyN(w, reader, length); err != nil {
		e.logger.Debug("file range copy interrupted",
			slog.String("fingerprint", fp.String()),
			slog.Int("fileIndex", index),
			slog.String("error", err.Error()),
		)
	}
}

func parseByteRange(value string, size int64) (int64, int64, error) {
	if size <= 0 {
		return 0, 0, errRangeNotSatisfiable
	}

	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "bytes=") {
		return 0, 0, errInvalidRange
	}
	byteRange := strings.TrimSpace(value[len("bytes="):])
	if byteRange == "" || strings.Contains(byteRange, ",") {
		return 0, 0, errInvalidRange
	}

	startStr, endStr, found := strings.Cut(byteRange, "-")
	if !found {
		return 0, 0, errInvalidRange
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, errInvalidRange
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errInvalidRange
	}
	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}
	if endStr == "" {
		return start, size - 1, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, errInvalidRange
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

func fallbackContentType(ext string) string {
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	case ".ts", ".m2ts", ".mts":
		return "video/mp2t"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	default:
		return "application/octet-stream"
	}
}
