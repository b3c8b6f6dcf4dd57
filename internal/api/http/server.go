package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentcache/internal/domain"
	"torrentcache/internal/domain/ports"
	"torrentcache/internal/services/stream/proxy"
	"torrentcache/internal/usecase"
)

const (
	defaultRateLimitRPS   = 100
	defaultRateLimitBurst = 200
	maxStreamBodyBytes    = 64 << 10
)

type PrepareStreamUseCase interface {
	Execute(ctx context.Context, input usecase.PrepareStreamInput) (usecase.StreamResult, error)
}

type FileProxy interface {
	Fetch(ctx context.Context, method, rangeHeader, target string) (*proxy.Response, error)
}

type CacheController interface {
	Snapshot() []domain.CachedTorrent
	Usage() domain.CacheUsage
	Evict(ctx context.Context, fp domain.Fingerprint) error
}

type Server struct {
	prepareStream  PrepareStreamUseCase
	proxy          FileProxy
	cache          CacheController
	indexer        ports.Indexer
	allowedOrigins []string
	rateRPS        float64
	rateBurst      int
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithProxy(p FileProxy) ServerOption {
	return func(s *Server) {
		s.proxy = p
	}
}

func WithCache(cache CacheController) ServerOption {
	return func(s *Server) {
		s.cache = cache
	}
}

// WithIndexer enables GET /indexer/search.
func WithIndexer(indexer ports.Indexer) ServerOption {
	return func(s *Server) {
		s.indexer = indexer
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func NewServer(prepare PrepareStreamUseCase, opts ...ServerOption) *Server {
	s := &Server{
		prepareStream: prepare,
		rateRPS:       defaultRateLimitRPS,
		rateBurst:     defaultRateLimitBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /stream", s.handleStream)
	mux.HandleFunc("GET /file", s.handleFile)
	mux.HandleFunc("GET /torrents", s.handleListTorrents)
	mux.HandleFunc("DELETE /torrents/{fingerprint}", s.handleEvictTorrent)
	mux.HandleFunc("GET /indexer/search", s.handleIndexerSearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "torrentcache",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(s.rateRPS, s.rateBurst,
			metricsMiddleware(
				securityHeadersMiddleware(
					corsMiddleware(s.allowedOrigins, traced)))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()

	if s.cache != nil {
		s.wsHub.sendTo(client, "cache", s.cacheSnapshot())
	}
}

// BroadcastCache pushes the current cache snapshot to all WebSocket clients.
func (s *Server) BroadcastCache() {
	if s.wsHub == nil || s.cache == nil {
		return
	}
	s.wsHub.Broadcast("cache", s.cacheSnapshot())
}

// Close stops the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
