package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"torrentcache/internal/domain"
	"torrentcache/internal/domain/ports"
)

// DefaultProxyPath is the route that serves proxied engine files.
const DefaultProxyPath = "/file"

type SourceResolver interface {
	Resolve(ctx context.Context, locator string) (domain.Source, domain.Fingerprint, error)
}

type FileAcquirer interface {
	AcquireFile(ctx context.Context, src domain.Source, fp domain.Fingerprint, hint domain.EpisodeHint) (ports.TorrentFile, error)
}

type FileServer interface {
	BaseURL() string
}

type PrepareStreamInput struct {
	SourceURL string
	Hint      domain.EpisodeHint
}

type StreamResult struct {
	Fingerprint domain.Fingerprint
	File        domain.FileRef
	// InternalURL addresses the engine's loopback file server.
	InternalURL string
	// StreamURL is the client-facing proxy URL for InternalURL.
	StreamURL string
}

// PrepareStream resolves a locator, acquires the file to play and builds the
// URL the client streams it from.
type PrepareStream struct {
	Resolver  SourceResolver
	Cache     FileAcquirer
	Files     FileServer
	ProxyPath string
	Logger    *slog.Logger
}

func (uc PrepareStream) Execute(ctx context.Context, input PrepareStreamInput) (StreamResult, error) {
	locator := strings.TrimSpace(input.SourceURL)
	if locator == "" {
		return StreamResult{}, ErrInvalidSource
	}
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	src, fp, err := uc.Resolver.Resolve(ctx, locator)
	if err != nil {
		return StreamResult{}, err
	}

	file, err := uc.Cache.AcquireFile(ctx, src, fp, input.Hint)
	if err != nil {
		return StreamResult{}, err
	}

	base := strings.TrimRight(uc.Files.BaseURL(), "/")
	if base == "" {
		return StreamResult{}, wrapEngine(errors.New("file server is not listening"))
	}
	internal := base + file.StreamPath()

	proxyPath := uc.ProxyPath
	if proxyPath == "" {
		proxyPath = DefaultProxyPath
	}

	logger.Info("stream prepared",
		slog.String("fingerprint", fp.String()),
		slog.String("file", file.Name()),
		slog.String("sourceKind", string(src.Kind)),
	)

	return StreamResult{
		Fingerprint: fp,
		File: domain.FileRef{
			Index:  file.Index(),
			Path:   file.Name(),
			Length: file.Length(),
		},
		InternalURL: internal,
		StreamURL:   proxyPath + "?u=" + url.QueryEscape(internal),
	}, nil
}
