package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	apihttp "torrentcache/internal/api/http"
	"torrentcache/internal/app"
	"torrentcache/internal/metrics"
	"torrentcache/internal/services/indexer/prowlarr"
	"torrentcache/internal/services/stream/proxy"
	"torrentcache/internal/services/torrent/engine/anacrolix"
	"torrentcache/internal/services/torrent/resolver"
	"torrentcache/internal/telemetry"
	"torrentcache/internal/usecase"
)

const (
	serviceName            = "torrentcache"
	cacheBroadcastInterval = 5 * time.Second
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Torrent cache and streaming orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.LoadDotEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file merged into the environment when present")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})
	root.AddCommand(newResolveCommand())
	return root
}

func newResolveCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve a locator to its fingerprint without admitting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			src, fp, err := resolver.New().Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", fp, src.Kind)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "resolution timeout")
	return cmd
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(parent, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("dataDir", cfg.TorrentDataDir),
		slog.Int64("storageLimitBytes", cfg.StorageLimitBytes),
		slog.Int("trackers", len(cfg.Trackers)),
		slog.Bool("indexer", cfg.ProwlarrBaseURL != ""),
	)

	if err := prepareDataDir(cfg.TorrentDataDir, cfg.WipeDataDirOnStart); err != nil {
		logger.Error("data dir init failed", slog.String("error", err.Error()))
		return err
	}

	rootCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := anacrolix.New(anacrolix.Config{
		DataDir:    cfg.TorrentDataDir,
		ListenPort: cfg.TorrentListenPort,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		return err
	}

	cache := usecase.NewCacheManager(engine, usecase.CacheConfig{
		StoragePath:      cfg.TorrentDataDir,
		BudgetBytes:      cfg.StorageLimitBytes,
		Trackers:         cfg.Trackers,
		AdmissionTimeout: cfg.AdmissionTimeout,
		IdleThreshold:    cfg.IdleThreshold,
		MinRatio:         cfg.MinRatio,
		SweepInterval:    cfg.SweepInterval,
	}, logger)
	cache.Start()

	prepareUC := usecase.PrepareStream{
		Resolver: resolver.New(resolver.WithLogger(logger)),
		Cache:    cache,
		Files:    engine,
		Logger:   logger,
	}

	options := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithProxy(proxy.New(cache, proxy.WithLogger(logger))),
		apihttp.WithCache(cache),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	indexer := prowlarr.NewClient(prowlarr.Config{BaseURL: cfg.ProwlarrBaseURL, APIKey: cfg.ProwlarrAPIKey})
	if indexer.Configured() {
		options = append(options, apihttp.WithIndexer(indexer))
	}

	handler := apihttp.NewServer(prepareUC, options...)
	go broadcastCache(rootCtx, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("fileServer", engine.BaseURL()),
	)

	var serveErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			serveErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	cache.Close()
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return serveErr
}

// broadcastCache pushes cache snapshots to websocket subscribers.
func broadcastCache(ctx context.Context, handler *apihttp.Server) {
	ticker := time.NewTicker(cacheBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handler.BroadcastCache()
		}
	}
}

// prepareDataDir creates the download directory, emptying it first when
// wipe is set. Torrents never survive a restart, so leftover data is orphaned.
func prepareDataDir(dir string, wipe bool) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return errors.New("data dir is empty")
	}
	if wipe {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("wipe %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
