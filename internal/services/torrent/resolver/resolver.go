// Package resolver turns indexer locators into a content fingerprint and the
// descriptor the engine needs to admit the torrent.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentcache/internal/domain"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxMetainfoBytes      = 10 << 20
)

var ErrMalformedSource = fmt.Errorf("%w: malformed source", domain.ErrResolution)

// UpstreamStatusError reports a locator that answered with something other
// than a metainfo payload or a magnet redirect.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s: upstream returned status %d", domain.ErrResolution, e.StatusCode)
}

func (e *UpstreamStatusError) Unwrap() error {
	return domain.ErrResolution
}

type Resolver struct {
	client *http.Client
	logger *slog.Logger
}

type Option func(*Resolver)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	base := r.client
	if base == nil {
		base = &http.Client{
			Timeout:   defaultRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	// Redirects are part of the protocol here, never followed.
	client := *base
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	r.client = &client
	return r
}

// Resolve fetches locator without following redirects. A 200 carries a
// metainfo payload, a 301 points at a magnet URI. Locators that already are
// magnet URIs are parsed without a network round trip.
func (r *Resolver) Resolve(ctx context.Context, locator string) (domain.Source, domain.Fingerprint, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return domain.Source{}, "", fmt.Errorf("%w: empty locator", ErrMalformedSource)
	}
	if isMagnet(locator) {
		return ParseMagnet(locator)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return domain.Source{}, "", fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Source{}, "", fmt.Errorf("%w: %v", domain.ErrResolution, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		src, fp, err := FromMetainfo(resp.Body)
		if err == nil {
			r.logger.Debug("resolved metainfo locator", slog.String("fingerprint", fp.String()))
		}
		return src, fp, err
	case http.StatusMovedPermanently:
		location := resp.Header.Get("Location")
		src, fp, err := ParseMagnet(location)
		if err == nil {
			r.logger.Debug("resolved magnet redirect", slog.String("fingerprint", fp.String()))
		}
		return src, fp, err
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Source{}, "", &UpstreamStatusError{StatusCode: resp.StatusCode}
	}
}

// FromMetainfo decodes a metainfo payload and hashes its info dictionary.
// The digest covers the info bytes exactly as they appear in the payload, so
// key order and unknown keys are preserved.
func FromMetainfo(body io.Reader) (domain.Source, domain.Fingerprint, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxMetainfoBytes+1))
	if err != nil {
		return domain.Source{}, "", fmt.Errorf("%w: read metainfo: %v", domain.ErrResolution, err)
	}
	if len(data) > maxMetainfoBytes {
		return domain.Source{}, "", fmt.Errorf("%w: metainfo larger than %d bytes", ErrMalformedSource, maxMetainfoBytes)
	}

	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return domain.Source{}, "", fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	if len(mi.InfoBytes) == 0 {
		return domain.Source{}, "", fmt.Errorf("%w: missing info dictionary", ErrMalformedSource)
	}
	if mi.InfoBytes[0] != 'd' {
		return domain.Source{}, "", fmt.Errorf("%w: info is not a dictionary", ErrMalformedSource)
	}

	fp := domain.Fingerprint(mi.HashInfoBytes().HexString())
	return domain.MetainfoSource(data), fp, nil
}
