package usecase

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"torrentcache/internal/domain"
	"torrentcache/internal/domain/ports"
)

var videoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".wmv":  {},
	".flv":  {},
	".webm": {},
}

// SelectFile picks the single file to stream and marks it for download.
// Every file is deselected first, so at most one file per torrent is fetched.
// With a valid episode hint and several candidates, only files carrying the
// matching SxxEyy or NxNN marker are considered; no match means no file.
// The largest remaining candidate wins.
func SelectFile(files []ports.TorrentFile, hint domain.EpisodeHint) (ports.TorrentFile, bool) {
	for _, f := range files {
		f.Deselect()
	}

	candidates := make([]ports.TorrentFile, 0, len(files))
	for _, f := range files {
		if isVideoFile(f.Name()) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	if hint.Valid() && len(candidates) > 1 {
		candidates = filterEpisode(candidates, hint)
		if len(candidates) == 0 {
			return nil, false
		}
	}

	best := candidates[0]
	for _, f := range candidates[1:] {
		if f.Length() > best.Length() {
			best = f
		}
	}
	best.Select()
	return best, true
}

func isVideoFile(name string) bool {
	_, ok := videoExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

func filterEpisode(files []ports.TorrentFile, hint domain.EpisodeHint) []ports.TorrentFile {
	patterns := episodePatterns(hint)
	out := make([]ports.TorrentFile, 0, len(files))
	for _, f := range files {
		for _, re := range patterns {
			if re.MatchString(f.Name()) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func episodePatterns(hint domain.EpisodeHint) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`(?i)s0*%d[\s._-]*e0*%d\b`, hint.Season, hint.Episode)),
		regexp.MustCompile(fmt.Sprintf(`(?i)\b%dx0*%d\b`, hint.Season, hint.Episode)),
	}
}
