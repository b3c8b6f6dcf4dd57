package prowlarr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"torrentcache/internal/domain"
)

const sampleResponse = `[
  {"title":"Show.Name.S01E02.1080p.WEB-DL.x264-GRP","downloadUrl":"http://prowlarr.local/1/download?link=a","size":1500,"seeders":40,"indexer":"Alpha"},
  {"title":"Show.Name.S01E03.720p.HDTV.x264-GRP","downloadUrl":"http://prowlarr.local/1/download?link=b","size":900,"seeders":90,"indexer":"Alpha"},
  {"title":"Show.Name.S01.2160p.WEB-DL.x265-GRP","magnetUrl":"magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567","size":9000,"seeders":70,"indexer":"Beta"},
  {"title":"Show.Name.S01E02.1080p.WEB-DL.x264-GRP","downloadUrl":"http://prowlarr.local/2/download?link=c","size":1500,"seeders":40,"indexer":"Gamma"},
  {"title":"No Locator","size":1,"seeders":500},
  {"title":"","downloadUrl":"http://prowlarr.local/3"}
]`

func newProwlarr(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", Client: srv.Client()})
}

func TestSearchEpisode(t *testing.T) {
	var gotPath, gotKey, gotQuery, gotType string
	client := newProwlarr(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		gotQuery = r.URL.Query().Get("query")
		gotType = r.URL.Query().Get("type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	})

	results, err := client.Search(t.Context(), domain.IndexerQuery{Query: "Show Name", Season: 1, Episode: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotPath != "/api/v1/search" || gotKey != "secret" {
		t.Fatalf("request = %s key=%q", gotPath, gotKey)
	}
	if gotQuery != "Show Name S01E02" || gotType != "tvsearch" {
		t.Fatalf("query = %q type = %q", gotQuery, gotType)
	}

	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	// Season pack has more seeders and sorts first.
	if !strings.HasPrefix(results[0].Locator, "magnet:") || results[0].Resolution != 2160 {
		t.Fatalf("first = %+v", results[0])
	}
	if results[1].Episode != 2 || results[1].Season != 1 || results[1].Resolution != 1080 {
		t.Fatalf("second = %+v", results[1])
	}
	if results[1].Indexer != "Alpha" {
		t.Fatalf("duplicate release must keep the first occurrence, got %q", results[1].Indexer)
	}
}

func TestSearchPlainQuery(t *testing.T) {
	var gotQuery, gotType string
	client := newProwlarr(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotType = r.URL.Query().Get("type")
		_, _ = w.Write([]byte(`[]`))
	})

	results, err := client.Search(t.Context(), domain.IndexerQuery{Query: "  Some Movie 2019 "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v", results)
	}
	if gotQuery != "Some Movie 2019" || gotType != "search" {
		t.Fatalf("query = %q type = %q", gotQuery, gotType)
	}
}

func TestSearchUpstreamError(t *testing.T) {
	client := newProwlarr(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})
	_, err := client.Search(t.Context(), domain.IndexerQuery{Query: "x"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v", err)
	}
}

func TestSearchNotConfigured(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://prowlarr.local"})
	if client.Configured() {
		t.Fatalf("client without api key must not be configured")
	}
	if _, err := client.Search(t.Context(), domain.IndexerQuery{Query: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestParseResolution(t *testing.T) {
	tests := map[string]int{
		"Movie.2019.1080p.BluRay":    1080,
		"Movie.2019.720p.WEB":        720,
		"Movie 2019 4K HDR":          2160,
		"Movie.2019.UHD.BluRay":      2160,
		"Movie.2019.8K":              4320,
		"Movie.2019.DVDRip.XviD-GRP": 0,
	}
	for title, want := range tests {
		if got := parseResolution(title); got != want {
			t.Fatalf("parseResolution(%q) = %d, want %d", title, got, want)
		}
	}
}

func TestSearchText(t *testing.T) {
	if got := searchText("Show", 3, 7); got != "Show S03E07" {
		t.Fatalf("episode = %q", got)
	}
	if got := searchText("Show", 12, 0); got != "Show S12" {
		t.Fatalf("season = %q", got)
	}
	if got := searchText("Movie", 0, 4); got != "Movie" {
		t.Fatalf("movie = %q", got)
	}
}
