package prowlarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cehbz/torrentname"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentcache/internal/domain"
)

const defaultTimeout = 8 * time.Second

var ErrNotConfigured = errors.New("prowlarr is not configured")

var resolutionPattern = regexp.MustCompile(`(?i)\b(\d{3,4}p|4k|8k|uhd)\b`)

type Config struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// Client searches a Prowlarr instance and turns its releases into
// candidate locators.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

type release struct {
	Title       string `json:"title"`
	GUID        string `json:"guid"`
	DownloadURL string `json:"downloadUrl"`
	MagnetURL   string `json:"magnetUrl"`
	InfoURL     string `json:"infoUrl"`
	Size        int64  `json:"size"`
	Seeders     int    `json:"seeders"`
	Indexer     string `json:"indexer"`
}

// Search queries /api/v1/search. A season or episode narrows the request to
// a tvsearch and drops releases that parse to a different season or episode.
func (c *Client) Search(ctx context.Context, query domain.IndexerQuery) ([]domain.Candidate, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	text := strings.TrimSpace(query.Query)
	if text == "" {
		return nil, errors.New("query is required")
	}

	params := url.Values{}
	params.Set("query", searchText(text, query.Season, query.Episode))
	if query.Season > 0 {
		params.Set("type", "tvsearch")
	} else {
		params.Set("type", "search")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("prowlarr HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var releases []release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode prowlarr response: %w", err)
	}

	out := make([]domain.Candidate, 0, len(releases))
	seen := make(map[string]struct{}, len(releases))
	for _, r := range releases {
		candidate, ok := toCandidate(r)
		if !ok || !matchesEpisode(candidate, query) {
			continue
		}
		key := candidate.Title + "-" + strconv.Itoa(candidate.Seeders)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidate)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Seeders > out[j].Seeders
	})
	return out, nil
}

func searchText(text string, season, episode int) string {
	switch {
	case season > 0 && episode > 0:
		return fmt.Sprintf("%s S%02dE%02d", text, season, episode)
	case season > 0:
		return fmt.Sprintf("%s S%02d", text, season)
	default:
		return text
	}
}

func toCandidate(r release) (domain.Candidate, bool) {
	title := strings.TrimSpace(r.Title)
	locator := firstNonEmpty(r.DownloadURL, r.MagnetURL, r.InfoURL)
	if title == "" || locator == "" {
		return domain.Candidate{}, false
	}
	candidate := domain.Candidate{
		Title:      title,
		Locator:    locator,
		Indexer:    r.Indexer,
		Size:       r.Size,
		Seeders:    r.Seeders,
		Resolution: parseResolution(title),
	}
	if parsed := torrentname.Parse(title); parsed != nil {
		candidate.Season = parsed.Season
		candidate.Episode = parsed.Episode
		candidate.Complete = parsed.IsComplete
	}
	return candidate, true
}

// matchesEpisode keeps releases whose parsed numbering does not contradict
// the query. Season packs (no episode) pass an episode query.
func matchesEpisode(c domain.Candidate, query domain.IndexerQuery) bool {
	if query.Season > 0 && c.Season > 0 && c.Season != query.Season {
		return false
	}
	if query.Episode > 0 && c.Episode > 0 && c.Episode != query.Episode {
		return false
	}
	return true
}

func parseResolution(title string) int {
	match := strings.ToLower(resolutionPattern.FindString(title))
	switch match {
	case "":
		return 0
	case "4k", "uhd":
		return 2160
	case "8k":
		return 4320
	}
	n, _ := strconv.Atoi(strings.TrimSuffix(match, "p"))
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
