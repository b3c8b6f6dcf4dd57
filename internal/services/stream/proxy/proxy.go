package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentcache/internal/domain"
	"torrentcache/internal/metrics"
)

const (
	DefaultAttempts = 6
	DefaultDelay    = 60 * time.Millisecond
)

var (
	ErrInvalidTarget       = errors.New("invalid target url")
	ErrForbidden           = errors.New("target is not the local file server")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// allowedHeaders are the upstream response headers a player needs for
// streaming and seeking.
var allowedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Accept-Ranges",
	"Content-Range",
	"Etag",
	"Last-Modified",
}

var initialProbePattern = regexp.MustCompile(`(?i)^bytes=0-\d*$`)

// Toucher refreshes the idle clock of a torrent that is being read.
type Toucher interface {
	Touch(fp domain.Fingerprint)
}

type Response struct {
	StatusCode int
	Header     http.Header
	// Body streams the upstream payload; the caller closes it.
	Body io.ReadCloser
}

type Option func(*Proxy)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Proxy) {
		if client != nil {
			p.client = client
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry overrides the probe retry budget.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(p *Proxy) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if delay > 0 {
			p.delay = delay
		}
	}
}

// Proxy forwards player requests to the engine's loopback file server.
type Proxy struct {
	client   *http.Client
	toucher  Toucher
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

func New(toucher Toucher, opts ...Option) *Proxy {
	p := &Proxy{
		client: &http.Client{
			Transport: otelhttp.NewTransport(&http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
				MaxIdleConnsPerHost:   16,
			}),
		},
		toucher:  toucher,
		logger:   slog.Default(),
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateTarget parses raw and accepts only plain http URLs on the
// loopback host.
func ValidateTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidTarget
	}
	target, err := url.Parse(raw)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, ErrInvalidTarget
	}
	host := target.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return nil, ErrForbidden
	}
	if target.Scheme != "http" {
		return nil, ErrForbidden
	}
	return target, nil
}

// IsInitialProbe reports whether a request reads the start of a file: no
// Range header, or a range beginning at byte zero.
func IsInitialProbe(rangeHeader string) bool {
	rangeHeader = strings.TrimSpace(rangeHeader)
	return rangeHeader == "" || initialProbePattern.MatchString(rangeHeader)
}

// FingerprintOf extracts the torrent fingerprint from the first path segment
// of a file server URL.
func FingerprintOf(target *url.URL) (domain.Fingerprint, bool) {
	first, _, _ := strings.Cut(strings.TrimPrefix(target.Path, "/"), "/")
	fp, err := domain.ParseFingerprint(first)
	if err != nil {
		return "", false
	}
	return fp, true
}

type upstreamStatusError struct {
	status int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.status)
}

// Fetch issues method against target, forwarding rangeHeader. Initial probes
// are retried on 5xx and transport errors; other requests get one attempt
// and pass upstream 5xx responses through.
func (p *Proxy) Fetch(ctx context.Context, method, rangeHeader, target string) (*Response, error) {
	u, err := ValidateTarget(target)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodGet
	}
	if fp, ok := FingerprintOf(u); ok && p.toucher != nil {
		p.toucher.Touch(fp)
	}

	probe := IsInitialProbe(rangeHeader)
	attempts := uint(1)
	if probe {
		attempts = p.attempts
	}

	var resp *http.Response
	err = retry.Do(
		func() error {
			r, err := p.do(ctx, method, rangeHeader, u)
			if err != nil {
				return err
			}
			if probe && r.StatusCode >= http.StatusInternalServerError {
				_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4<<10))
				r.Body.Close()
				return &upstreamStatusError{status: r.StatusCode}
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.ProxyRetriesTotal.Inc()
			p.logger.Debug("file probe retry",
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("target", u.Path),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.ProxyUpstreamFailuresTotal.Inc()
		p.logger.Warn("file upstream unavailable",
			slog.String("target", u.Path),
			slog.Bool("initialProbe", probe),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     filterHeaders(resp.Header),
		Body:       resp.Body,
	}, nil
}

func (p *Proxy) do(ctx context.Context, method, rangeHeader string, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return p.client.Do(req)
}

func filterHeaders(upstream http.Header) http.Header {
	out := make(http.Header, len(allowedHeaders)+1)
	for _, name := range allowedHeaders {
		if v := upstream.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	out.Set("Cache-Control", "no-store")
	return out
}
